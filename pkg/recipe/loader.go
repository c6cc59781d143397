package recipe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kptnexport/pkg/kptncook"
	"kptnexport/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// DetailsFetcher resolves a favorite identifier into an API recipe
type DetailsFetcher interface {
	RecipeDetails(ctx context.Context, id string) (*kptncook.APIRecipe, error)
}

// LoadError records a favorite that could not be loaded
type LoadError struct {
	ID  string
	Err error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("recipe %s: %v", e.ID, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// ProgressFunc is called after each favorite has been processed
type ProgressFunc func(done, total int, id string, err error)

// Loader fetches and converts favorites
type Loader struct {
	fetcher           DetailsFetcher
	referenceServings int
	concurrency       int
	logger            logger.Logger
	onProgress        ProgressFunc
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithConcurrency bounds the number of detail requests in flight
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLoaderLogger sets the loader logger
func WithLoaderLogger(log logger.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// WithProgress registers a callback for per-recipe progress
func WithProgress(fn ProgressFunc) LoaderOption {
	return func(l *Loader) {
		l.onProgress = fn
	}
}

// NewLoader creates a loader whose recipes refer to referenceServings
func NewLoader(fetcher DetailsFetcher, referenceServings int, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher:           fetcher,
		referenceServings: referenceServings,
		concurrency:       4,
		logger:            logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadAll fetches every id and returns the recipes in the order of ids.
// Favorites that fail are skipped and reported in the returned LoadErrors;
// the error result is only set when ctx ends the run.
func (l *Loader) LoadAll(ctx context.Context, ids []string) ([]*Recipe, []LoadError, error) {
	results := make([]*Recipe, len(ids))
	failures := make([]error, len(ids))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			r, err := l.Load(gctx, id)
			if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && gctx.Err() != nil {
				return err
			}
			results[i], failures[i] = r, err

			mu.Lock()
			done++
			n := done
			mu.Unlock()

			if err != nil {
				l.logger.WarnWithFields("skipping recipe", map[string]interface{}{
					"recipe_id": id,
					"error":     err.Error(),
				})
			}
			if l.onProgress != nil {
				l.onProgress(n, len(ids), id, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	recipes := make([]*Recipe, 0, len(ids))
	var loadErrs []LoadError
	for i, id := range ids {
		if failures[i] != nil {
			loadErrs = append(loadErrs, LoadError{ID: id, Err: failures[i]})
			continue
		}
		recipes = append(recipes, results[i])
	}

	l.logger.InfoWithFields("loaded recipe details", map[string]interface{}{
		"requested": len(ids),
		"loaded":    len(recipes),
		"failed":    len(loadErrs),
	})
	return recipes, loadErrs, nil
}

// Load fetches and converts a single favorite
func (l *Loader) Load(ctx context.Context, id string) (*Recipe, error) {
	api, err := l.fetcher.RecipeDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := FromAPI(api, l.referenceServings)
	if err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = id
	}
	return r, nil
}
