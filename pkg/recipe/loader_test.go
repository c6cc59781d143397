package recipe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kptnexport/pkg/kptncook"
	"kptnexport/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	delay    time.Duration
	failing  map[string]error
	inFlight int32
	peak     int32
}

func (f *fakeFetcher) RecipeDetails(ctx context.Context, id string) (*kptncook.APIRecipe, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err, ok := f.failing[id]; ok {
		return nil, err
	}
	return &kptncook.APIRecipe{ID: kptncook.ObjectID{OID: id}, Title: "Recipe " + id}, nil
}

func TestLoadAllPreservesOrder(t *testing.T) {
	fetcher := &fakeFetcher{delay: 5 * time.Millisecond}
	loader := NewLoader(fetcher, 1, WithConcurrency(3), WithLoaderLogger(logger.NewNopLogger()))

	ids := []string{"a", "b", "c", "d", "e", "f", "g"}
	recipes, failures, err := loader.LoadAll(context.Background(), ids)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, recipes, len(ids))
	for i, r := range recipes {
		assert.Equal(t, ids[i], r.ID)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.peak), int32(3))
}

func TestLoadAllSkipsFailures(t *testing.T) {
	notFound := kptncook.ErrRecipeNotFound
	fetcher := &fakeFetcher{failing: map[string]error{"b": notFound}}

	var (
		mu    sync.Mutex
		calls []string
	)
	loader := NewLoader(fetcher, 1,
		WithLoaderLogger(logger.NewNopLogger()),
		WithProgress(func(done, total int, id string, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 3, total)
			calls = append(calls, id)
		}),
	)

	recipes, failures, err := loader.LoadAll(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, recipes, 2)
	assert.Equal(t, "a", recipes[0].ID)
	assert.Equal(t, "c", recipes[1].ID)

	require.Len(t, failures, 1)
	assert.Equal(t, "b", failures[0].ID)
	assert.True(t, errors.Is(failures[0], notFound))
	assert.Len(t, calls, 3)
}

func TestLoadAllCancelled(t *testing.T) {
	fetcher := &fakeFetcher{delay: time.Second}
	loader := NewLoader(fetcher, 1, WithLoaderLogger(logger.NewNopLogger()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := loader.LoadAll(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadFillsMissingID(t *testing.T) {
	loader := NewLoader(fetcherFunc(func(ctx context.Context, id string) (*kptncook.APIRecipe, error) {
		return &kptncook.APIRecipe{Title: "No ID"}, nil
	}), 1, WithLoaderLogger(logger.NewNopLogger()))

	r, err := loader.Load(context.Background(), "fav-1")
	require.NoError(t, err)
	assert.Equal(t, "fav-1", r.ID)
}

type fetcherFunc func(ctx context.Context, id string) (*kptncook.APIRecipe, error)

func (f fetcherFunc) RecipeDetails(ctx context.Context, id string) (*kptncook.APIRecipe, error) {
	return f(ctx, id)
}
