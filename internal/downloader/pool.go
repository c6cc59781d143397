package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"kptnexport/pkg/logger"
	"kptnexport/pkg/ratelimit"
)

// ErrPoolStopped is returned by Submit once the pool is shutting down
var ErrPoolStopped = errors.New("worker pool is shutting down")

// ImageJob is one step image to fetch
type ImageJob struct {
	RecipeID string
	Step     int
	URL      string
	Filename string
}

// ImageResult is the outcome of an ImageJob
type ImageResult struct {
	Job      ImageJob
	Skipped  bool // already on disk
	Error    error
	Duration time.Duration
	Size     int
}

// Success reports whether the image is available on disk
func (r ImageResult) Success() bool {
	return r.Error == nil
}

// ImageFetcher downloads image bytes
type ImageFetcher interface {
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

// ImageStorage persists images by filename
type ImageStorage interface {
	IsDownloaded(filename string) bool
	Save(filename string, r io.Reader) error
}

// WorkerPool downloads images with a fixed number of workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan ImageJob
	resultQueue chan ImageResult
	wg          sync.WaitGroup
	stopOnce    sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     ImageFetcher
	storage     ImageStorage
	rateLimiter ratelimit.Limiter
	logger      logger.Logger
}

// NewWorkerPool creates a pool bound to ctx. A nil limiter means no pacing.
func NewWorkerPool(
	ctx context.Context,
	numWorkers int,
	fetcher ImageFetcher,
	storage ImageStorage,
	rateLimiter ratelimit.Limiter,
	log logger.Logger,
) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if rateLimiter == nil {
		rateLimiter = ratelimit.Unlimited{}
	}
	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan ImageJob, numWorkers*2),
		resultQueue: make(chan ImageResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		storage:     storage,
		rateLimiter: rateLimiter,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	logger.LogComponentStart(wp.logger, "image worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for the workers and closes Results.
// Results must be drained concurrently or Stop can block.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobQueue)
		wp.wg.Wait()
		close(wp.resultQueue)
		wp.cancel()
		logger.LogComponentStop(wp.logger, "image worker pool", "queue drained")
	})
}

// Submit queues a job, blocking while the queue is full
func (wp *WorkerPool) Submit(job ImageJob) error {
	select {
	case <-wp.ctx.Done():
		return ErrPoolStopped
	default:
	}

	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return ErrPoolStopped
	}
}

// Results delivers one result per processed job
func (wp *WorkerPool) Results() <-chan ImageResult {
	return wp.resultQueue
}

// Run processes jobs to completion and returns their results in completion
// order. onResult, when set, sees each result as it arrives. Jobs not
// started before ctx ends produce no result.
func (wp *WorkerPool) Run(jobs []ImageJob, onResult func(ImageResult)) []ImageResult {
	wp.Start()
	go func() {
		defer wp.Stop()
		for _, job := range jobs {
			if err := wp.Submit(job); err != nil {
				return
			}
		}
	}()

	results := make([]ImageResult, 0, len(jobs))
	for r := range wp.Results() {
		if onResult != nil {
			onResult(r)
		}
		results = append(results, r)
	}
	return results
}

// QueueSize returns the number of jobs waiting for a worker
func (wp *WorkerPool) QueueSize() int {
	return len(wp.jobQueue)
}

// Workers returns the number of workers
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			continue
		}

		result := wp.processJob(job)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			wp.logger.DebugWithFields("worker dropping result after cancel", map[string]interface{}{
				"worker_id": id,
				"filename":  job.Filename,
			})
		}
	}
}

func (wp *WorkerPool) processJob(job ImageJob) ImageResult {
	start := time.Now()
	result := ImageResult{Job: job}
	defer func() {
		result.Duration = time.Since(start)
	}()

	if wp.storage.IsDownloaded(job.Filename) {
		result.Skipped = true
		logger.LogImageDownload(wp.logger, job.RecipeID, job.Step, job.Filename, true, nil)
		return result
	}

	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		result.Error = err
		return result
	}

	data, err := wp.fetcher.DownloadImage(wp.ctx, job.URL)
	if err != nil {
		result.Error = fmt.Errorf("download failed: %w", err)
		logger.LogImageDownload(wp.logger, job.RecipeID, job.Step, job.Filename, false, result.Error)
		return result
	}
	result.Size = len(data)

	if err := wp.storage.Save(job.Filename, bytes.NewReader(data)); err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		logger.LogImageDownload(wp.logger, job.RecipeID, job.Step, job.Filename, false, result.Error)
		return result
	}

	logger.LogImageDownload(wp.logger, job.RecipeID, job.Step, job.Filename, false, nil)
	return result
}
