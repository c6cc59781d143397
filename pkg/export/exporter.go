package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kptnexport/internal/downloader"
	"kptnexport/pkg/checkpoint"
	"kptnexport/pkg/config"
	"kptnexport/pkg/images"
	"kptnexport/pkg/kptncook"
	"kptnexport/pkg/logger"
	"kptnexport/pkg/manifest"
	"kptnexport/pkg/quantity"
	"kptnexport/pkg/ratelimit"
	"kptnexport/pkg/recipe"
	"kptnexport/pkg/render"
	"kptnexport/pkg/ui"
	"kptnexport/pkg/upload"
)

var (
	// ErrNoFavorites is returned when the account has no favorite recipes
	ErrNoFavorites = errors.New("no favorites found for this account")

	// ErrCheckpointExists is returned when a previous run left a checkpoint
	// and neither Resume nor ForceRestart was requested
	ErrCheckpointExists = errors.New("checkpoint exists - use --resume to continue or --force-restart to start fresh")
)

// pausePoll is how often a paused run checks whether it may continue
const pausePoll = 200 * time.Millisecond

// Client is the part of the KptnCook API an export needs
type Client interface {
	Login(ctx context.Context, email, password string) error
	Favorites(ctx context.Context) ([]string, error)
	RecipeDetails(ctx context.Context, id string) (*kptncook.APIRecipe, error)
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

// Options select how a run treats an existing checkpoint
type Options struct {
	Resume       bool
	ForceRestart bool
}

// Summary is the outcome of a run
type Summary struct {
	RunID          string
	Favorites      int
	Loaded         int
	Rendered       int
	Skipped        int
	Failed         int
	Images         int
	ImagesFailed   int
	Uploaded       int
	ImagesUploaded int
	UploadsFailed  int
	Files          []string
	ManifestPath   string
	Removed        []string
	Duration       time.Duration
}

// String is a one-line description of the run
func (s *Summary) String() string {
	parts := []string{fmt.Sprintf("%d of %d recipes exported", s.Rendered, s.Favorites)}
	if s.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d already done", s.Skipped))
	}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Images > 0 {
		parts = append(parts, fmt.Sprintf("%d images", s.Images))
	}
	if s.Uploaded > 0 {
		parts = append(parts, fmt.Sprintf("%d uploaded", s.Uploaded))
	}
	return strings.Join(parts, ", ") + " in " + ui.FormatDuration(s.Duration)
}

// Exporter orchestrates one export run
type Exporter struct {
	config        *config.Config
	client        Client
	formatter     quantity.Formatter
	renderer      render.Renderer
	reporter      ui.Reporter
	uploader      upload.Uploader
	imageLimiter  ratelimit.Limiter
	checkpointDir string
	logger        logger.Logger
}

// Option configures an Exporter
type Option func(*Exporter)

// WithReporter sets where progress is shown
func WithReporter(r ui.Reporter) Option {
	return func(e *Exporter) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithUploader copies every rendered document through u
func WithUploader(u upload.Uploader) Option {
	return func(e *Exporter) {
		e.uploader = u
	}
}

// WithRenderer replaces the renderer chosen from the configured format
func WithRenderer(r render.Renderer) Option {
	return func(e *Exporter) {
		e.renderer = r
	}
}

// WithLogger sets the exporter logger
func WithLogger(log logger.Logger) Option {
	return func(e *Exporter) {
		if log != nil {
			e.logger = log
		}
	}
}

// WithCheckpointDir keeps checkpoints in dir instead of the user data directory
func WithCheckpointDir(dir string) Option {
	return func(e *Exporter) {
		e.checkpointDir = dir
	}
}

// WithImageLimiter paces image downloads
func WithImageLimiter(l ratelimit.Limiter) Option {
	return func(e *Exporter) {
		e.imageLimiter = l
	}
}

// New creates an exporter for cfg
func New(cfg *config.Config, client Client, opts ...Option) (*Exporter, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if client == nil {
		return nil, errors.New("client is required")
	}

	e := &Exporter{
		config:   cfg,
		client:   client,
		reporter: ui.NopReporter{},
		logger:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	f, err := formatterFromConfig(cfg.Quantity)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity settings: %w", err)
	}
	e.formatter = f

	if e.renderer == nil {
		r, err := render.New(cfg.Output.Format, render.OptionsFromConfig(cfg, f, e.logger))
		if err != nil {
			return nil, err
		}
		e.renderer = r
	}
	if e.imageLimiter == nil {
		e.imageLimiter = ratelimit.FromSettings(cfg.RateLimit)
	}
	return e, nil
}

func formatterFromConfig(q config.QuantityConfig) (quantity.Formatter, error) {
	if len(q.Denominators) == 0 {
		return quantity.DefaultFormatter(), nil
	}
	places := q.DecimalPlaces
	if places == 0 {
		places = quantity.DefaultDecimalPlaces
	}
	return quantity.New(q.Denominators, q.Tolerance, places)
}

// Formatter returns the quantity formatter used by this exporter
func (e *Exporter) Formatter() quantity.Formatter {
	return e.formatter
}

// run carries the state of a single Run call
type run struct {
	summary    Summary
	checkpoint *checkpoint.Checkpoint
	manager    *checkpoint.Manager
	manifest   *manifest.Writer
	store      *images.Store
	images     map[string]map[int]string
	entries    []manifest.Entry
}

// Run exports all favorites of the configured account
func (e *Exporter) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	cfg := e.config
	account := cfg.KptnCook.Email
	format := strings.ToLower(cfg.Output.Format)

	logger.LogComponentStart(e.logger, "export", map[string]interface{}{
		"account":         account,
		"format":          format,
		"output":          cfg.Output.BaseDirectory,
		"target_servings": cfg.Servings.Target,
		"resume":          opts.Resume,
	})

	r := &run{images: make(map[string]map[int]string)}
	if err := e.openCheckpoint(r, account, format, opts); err != nil {
		return nil, err
	}

	e.reporter.SetStage(ui.StageLogin, 1)
	e.reporter.StartItem("login", account)
	if err := e.client.Login(ctx, account, cfg.KptnCook.Password); err != nil {
		e.reporter.FailItem("login", err)
		logger.LogComponentStop(e.logger, "export", "login failed")
		return nil, fmt.Errorf("login failed: %w", err)
	}
	e.reporter.CompleteItem("login", 0)

	e.reporter.SetStage(ui.StageFavorites, 1)
	e.reporter.StartItem("favorites", "favorites")
	ids, err := e.client.Favorites(ctx)
	if err != nil {
		e.reporter.FailItem("favorites", err)
		logger.LogComponentStop(e.logger, "export", "favorites failed")
		return nil, fmt.Errorf("failed to fetch favorites: %w", err)
	}
	if len(ids) == 0 {
		e.reporter.FailItem("favorites", ErrNoFavorites)
		return nil, ErrNoFavorites
	}
	e.reporter.CompleteItem("favorites", 0)
	e.reporter.LogInfo("Found %d favorites", len(ids))
	r.summary.Favorites = len(ids)

	r.manifest = manifest.NewWriter(cfg.Output.BaseDirectory, account, format, cfg.Servings.Target, cfg.Servings.Reference)
	r.summary.RunID = r.manifest.RunID()

	e.startCheckpoint(r, account, format, len(ids))

	var pending []string
	for _, id := range ids {
		if r.checkpoint.IsExported(id) {
			r.summary.Skipped++
			r.manifest.Add(manifest.Entry{RecipeID: id, File: r.checkpoint.Exported[id], Skipped: true})
			continue
		}
		pending = append(pending, id)
	}
	if r.summary.Skipped > 0 {
		e.reporter.LogInfo("Skipping %d recipes exported by a previous run", r.summary.Skipped)
	}

	recipes, err := e.loadRecipes(ctx, r, pending)
	if err != nil {
		return nil, err
	}

	if err := e.downloadImages(ctx, r, recipes); err != nil {
		return nil, err
	}

	if err := e.renderRecipes(ctx, r, recipes); err != nil {
		return nil, err
	}

	if e.uploader != nil {
		if err := e.uploadFiles(ctx, r, format); err != nil {
			return nil, err
		}
	}

	for _, entry := range r.entries {
		r.manifest.Add(entry)
	}

	if cfg.Download.CleanupUnused {
		e.cleanupImages(r, format)
	}

	if _, err := r.manifest.Close(); err != nil {
		e.logger.WithError(err).Error("Failed to write manifest")
		e.reporter.LogWarning("Could not write manifest: %v", err)
	} else {
		r.summary.ManifestPath = r.manifest.Path()
	}

	e.finishCheckpoint(r)

	r.summary.Duration = time.Since(start)
	e.logger.InfoWithFields("Export completed", map[string]interface{}{
		"run_id":    r.summary.RunID,
		"favorites": r.summary.Favorites,
		"rendered":  r.summary.Rendered,
		"skipped":   r.summary.Skipped,
		"failed":    r.summary.Failed,
		"images":    r.summary.Images,
		"uploaded":  r.summary.Uploaded,
		"duration":  r.summary.Duration,
	})
	logger.LogComponentStop(e.logger, "export", "completed")
	e.reporter.LogSuccess("%s", r.summary.String())
	return &r.summary, nil
}

// openCheckpoint applies Options to an existing checkpoint
func (e *Exporter) openCheckpoint(r *run, account, format string, opts Options) error {
	var (
		mgr *checkpoint.Manager
		err error
	)
	if e.checkpointDir != "" {
		mgr, err = checkpoint.NewManagerInDir(e.checkpointDir, account, checkpoint.WithLogger(e.logger))
	} else {
		mgr, err = checkpoint.NewManager(account, checkpoint.WithLogger(e.logger))
	}
	if err != nil {
		e.logger.WithError(err).Warn("Checkpoints disabled")
		return nil
	}
	r.manager = mgr

	if !mgr.Exists() {
		return nil
	}

	switch {
	case opts.ForceRestart:
		if err := mgr.Delete(); err != nil {
			e.logger.WithError(err).Warn("Failed to delete existing checkpoint")
		}
		e.reporter.LogInfo("Ignoring previous progress")
	case opts.Resume:
		cp, err := mgr.Load()
		if err != nil {
			e.logger.WithError(err).Error("Failed to load checkpoint")
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if cp != nil && cp.Format != "" && cp.Format != format {
			e.reporter.LogWarning("Previous run exported %s, starting over for %s", cp.Format, format)
			cp = nil
		}
		if cp != nil {
			e.reporter.LogInfo("Resuming: %d recipes already exported", len(cp.Exported))
			e.logger.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
				"account":        account,
				"run_id":         cp.RunID,
				"total_exported": cp.TotalExported,
			})
		}
		r.checkpoint = cp
	default:
		return ErrCheckpointExists
	}
	return nil
}

// startCheckpoint creates a checkpoint unless the run resumes one
func (e *Exporter) startCheckpoint(r *run, account, format string, favorites int) {
	if r.checkpoint != nil {
		r.checkpoint.TotalFavorite = favorites
		if err := r.manager.Save(r.checkpoint); err != nil {
			e.logger.WithError(err).Warn("Failed to update checkpoint")
		}
		return
	}
	if r.manager != nil {
		cp, err := r.manager.Create(account, format, favorites)
		if err == nil {
			cp.RunID = r.summary.RunID
			if err := r.manager.Save(cp); err != nil {
				e.logger.WithError(err).Warn("Failed to update checkpoint")
			}
			r.checkpoint = cp
			return
		}
		e.logger.WithError(err).Warn("Failed to create checkpoint")
		r.manager = nil
	}
	r.checkpoint = &checkpoint.Checkpoint{
		Account:       account,
		RunID:         r.summary.RunID,
		Format:        format,
		Exported:      make(map[string]string),
		TotalFavorite: favorites,
	}
}

func (e *Exporter) finishCheckpoint(r *run) {
	if r.manager == nil {
		return
	}
	if r.summary.Failed > 0 {
		e.reporter.LogWarning("%d recipes failed; run again with --resume to retry them", r.summary.Failed)
		return
	}
	if err := r.manager.Delete(); err != nil {
		e.logger.WithError(err).Warn("Failed to delete checkpoint")
		return
	}
	e.logger.Info("Checkpoint deleted after successful completion")
}

func (e *Exporter) loadRecipes(ctx context.Context, r *run, ids []string) ([]*recipe.Recipe, error) {
	e.reporter.SetStage(ui.StageLoad, len(ids))
	if len(ids) == 0 {
		return nil, nil
	}

	loader := recipe.NewLoader(e.client, e.config.Servings.Reference,
		recipe.WithConcurrency(e.config.Download.ConcurrentDownloads),
		recipe.WithLoaderLogger(e.logger),
		recipe.WithProgress(func(done, total int, id string, err error) {
			if err != nil {
				e.reporter.FailItem(id, err)
				return
			}
			e.reporter.CompleteItem(id, 0)
		}),
	)

	recipes, failures, err := loader.LoadAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		r.summary.Failed++
		r.entries = append(r.entries, manifest.Entry{RecipeID: f.ID, Error: f.Err.Error()})
	}
	r.summary.Loaded = len(recipes)
	return recipes, nil
}

func (e *Exporter) downloadImages(ctx context.Context, r *run, recipes []*recipe.Recipe) error {
	store, err := images.NewStore(e.config.ImagePath(), e.logger)
	if err != nil {
		return fmt.Errorf("failed to prepare image directory: %w", err)
	}
	r.store = store

	var jobs []downloader.ImageJob
	for _, rec := range recipes {
		for _, step := range rec.Steps {
			if step.ImageURL == "" {
				continue
			}
			jobs = append(jobs, downloader.ImageJob{
				RecipeID: rec.ID,
				Step:     step.Number,
				URL:      step.ImageURL,
				Filename: images.Filename(rec.ID, step.Number, step.ImageURL),
			})
		}
	}

	e.reporter.SetStage(ui.StageImages, len(jobs))
	if len(jobs) == 0 {
		return nil
	}

	pool := downloader.NewWorkerPool(ctx, e.config.Download.ConcurrentDownloads, e.client, store, e.imageLimiter, e.logger)
	pool.Run(jobs, func(res downloader.ImageResult) {
		if !res.Success() {
			r.summary.ImagesFailed++
			e.reporter.FailItem(res.Job.Filename, res.Error)
			return
		}
		if r.images[res.Job.RecipeID] == nil {
			r.images[res.Job.RecipeID] = make(map[int]string)
		}
		r.images[res.Job.RecipeID][res.Job.Step] = res.Job.Filename
		r.summary.Images++
		e.reporter.CompleteItem(res.Job.Filename, int64(res.Size))
	})

	if err := ctx.Err(); err != nil {
		return err
	}
	if r.summary.ImagesFailed > 0 {
		e.reporter.LogWarning("%d images could not be downloaded; their steps are rendered without picture", r.summary.ImagesFailed)
	}
	return nil
}

func (e *Exporter) renderRecipes(ctx context.Context, r *run, recipes []*recipe.Recipe) error {
	e.reporter.SetStage(ui.StageRender, len(recipes))

	if res, ok := e.renderer.(render.Reserver); ok {
		var taken []string
		for _, file := range r.checkpoint.Exported {
			taken = append(taken, file)
		}
		res.Reserve(taken)
	}

	for i, rec := range recipes {
		if err := e.waitWhilePaused(ctx); err != nil {
			return err
		}

		e.reporter.StartItem(rec.ID, rec.Title)
		imgs := r.images[rec.ID]
		path, err := e.renderer.Render(rec, imgs)
		logger.LogExport(e.logger, rec.ID, rec.Title, path, err)

		entry := manifest.Entry{RecipeID: rec.ID, Title: rec.Title, Images: sortedValues(imgs)}
		if err != nil {
			r.summary.Failed++
			entry.Error = err.Error()
			r.entries = append(r.entries, entry)
			e.reporter.FailItem(rec.ID, err)
			continue
		}

		entry.File = path
		r.entries = append(r.entries, entry)
		r.summary.Rendered++
		r.summary.Files = append(r.summary.Files, path)

		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		e.reporter.CompleteItem(rec.ID, size)
		logger.LogExportProgress(e.logger, i+1, len(recipes))

		if r.manager != nil {
			if err := r.manager.RecordExport(r.checkpoint, rec.ID, path); err != nil {
				e.logger.WithError(err).Warn("Failed to record export in checkpoint")
			}
		}
	}
	return nil
}

// uploadFiles copies the rendered documents to the uploader. Markdown
// documents link their images relative to the output directory, so those
// images are uploaded under the same relative names.
func (e *Exporter) uploadFiles(ctx context.Context, r *run, format string) error {
	withImages := format == config.FormatMarkdown
	e.reporter.SetStage(ui.StageUpload, r.summary.Rendered)

	uploaded := make(map[string]bool)
	for i := range r.entries {
		entry := &r.entries[i]
		if entry.File == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := filepath.Base(entry.File)
		e.reporter.StartItem(name, name)
		location, err := e.uploader.Upload(ctx, entry.File, name)
		if err != nil {
			r.summary.UploadsFailed++
			e.logger.WithError(err).WithField("file", entry.File).Warn("Upload failed")
			e.reporter.FailItem(name, err)
			continue
		}
		entry.Uploaded = location
		r.summary.Uploaded++
		e.reporter.CompleteItem(name, 0)

		if !withImages {
			continue
		}
		for _, img := range entry.Images {
			if uploaded[img] {
				continue
			}
			uploaded[img] = true
			if err := e.uploadImage(ctx, r, img); err != nil {
				r.summary.UploadsFailed++
				e.logger.WithError(err).WithField("image", img).Warn("Image upload failed")
			}
		}
	}
	return nil
}

func (e *Exporter) uploadImage(ctx context.Context, r *run, img string) error {
	file := filepath.Join(e.config.ImagePath(), img)
	name, err := filepath.Rel(e.config.Output.BaseDirectory, file)
	if err != nil || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return fmt.Errorf("image directory %s is outside the output directory", e.config.ImagePath())
	}
	if _, err := e.uploader.Upload(ctx, file, filepath.ToSlash(name)); err != nil {
		return err
	}
	r.summary.ImagesUploaded++
	return nil
}

// cleanupImages removes images no recipe of this run refers to. Markdown
// documents of earlier runs link their images, so a resumed Markdown
// export keeps the directory as it is.
func (e *Exporter) cleanupImages(r *run, format string) {
	if r.store == nil {
		return
	}
	if format == config.FormatMarkdown && r.summary.Skipped > 0 {
		e.reporter.LogInfo("Keeping images of previously exported recipes")
		return
	}

	var keep []string
	for _, imgs := range r.images {
		keep = append(keep, sortedValues(imgs)...)
	}
	removed, err := r.store.Cleanup(keep)
	if err != nil {
		e.logger.WithError(err).Warn("Image cleanup failed")
	}
	r.summary.Removed = removed
	if len(removed) > 0 {
		e.reporter.LogInfo("Removed %d unused images", len(removed))
	}
}

func (e *Exporter) waitWhilePaused(ctx context.Context) error {
	if !e.reporter.IsPaused() {
		return ctx.Err()
	}

	ticker := time.NewTicker(pausePoll)
	defer ticker.Stop()
	for e.reporter.IsPaused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func sortedValues(m map[int]string) []string {
	if len(m) == 0 {
		return nil
	}
	steps := make([]int, 0, len(m))
	for step := range m {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	out := make([]string, 0, len(steps))
	for _, step := range steps {
		out = append(out, m[step])
	}
	return out
}
