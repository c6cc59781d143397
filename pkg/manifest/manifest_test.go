package manifest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "Salat.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF-1.3 test"), 0644))

	w := NewWriter(dir, "cook@example.com", "pdf", 2, 1)
	_, err := uuid.Parse(w.RunID())
	require.NoError(t, err, "run ID should be a UUID")

	w.Add(Entry{RecipeID: "b", Title: "Salat", File: doc, Images: []string{"b_step01.jpg"}})
	w.Add(Entry{RecipeID: "a", Title: "Suppe", Error: "recipe not found"})
	assert.False(t, Exists(dir))

	written, err := w.Close()
	require.NoError(t, err)
	assert.True(t, Exists(dir))
	assert.Equal(t, 1, written.Failed())
	assert.False(t, written.FinishedAt.Before(written.StartedAt))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, w.RunID(), loaded.RunID)
	assert.Equal(t, 2, loaded.TargetServings)
	require.Len(t, loaded.Entries, 2)

	assert.Equal(t, "a", loaded.Entries[0].RecipeID, "entries sorted by recipe ID")
	assert.False(t, loaded.Entries[0].Succeeded())
	assert.True(t, loaded.Entries[1].Succeeded())
	assert.Equal(t, int64(len("%PDF-1.3 test")), loaded.Entries[1].FileSize)
	assert.False(t, loaded.Entries[1].ExportedAt.IsZero())
}

func TestWriterConcurrentAdd(t *testing.T) {
	w := NewWriter(t.TempDir(), "", "markdown", 2, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.Add(Entry{RecipeID: string(rune('a' + n)), Skipped: true})
		}(i)
	}
	wg.Wait()

	m, err := w.Close()
	require.NoError(t, err)
	assert.Len(t, m.Entries, 20)
	assert.Zero(t, m.Failed())
}

func TestRunIDsDiffer(t *testing.T) {
	a := NewWriter(t.TempDir(), "", "pdf", 2, 1)
	b := NewWriter(t.TempDir(), "", "pdf", 2, 1)
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
