package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the manifest file written into the output directory
const FileName = "manifest.json"

// Entry describes the outcome for one recipe
type Entry struct {
	RecipeID   string    `json:"recipe_id"`
	Title      string    `json:"title"`
	File       string    `json:"file,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	Images     []string  `json:"images,omitempty"`
	Uploaded   string    `json:"uploaded,omitempty"`
	Skipped    bool      `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// Succeeded reports whether the recipe produced a document
func (e Entry) Succeeded() bool {
	return e.Error == "" && (e.File != "" || e.Skipped)
}

// Manifest describes one export run
type Manifest struct {
	RunID             string    `json:"run_id"`
	Account           string    `json:"account,omitempty"`
	Format            string    `json:"format"`
	TargetServings    int       `json:"target_servings"`
	ReferenceServings int       `json:"reference_servings"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at,omitempty"`
	Entries           []Entry   `json:"entries"`
}

// Failed counts entries that carry an error
func (m *Manifest) Failed() int {
	n := 0
	for _, e := range m.Entries {
		if e.Error != "" {
			n++
		}
	}
	return n
}

// Writer collects entries during a run and writes the manifest at the end.
// It is safe for concurrent use.
type Writer struct {
	mu       sync.Mutex
	dir      string
	manifest Manifest
}

// NewWriter starts a manifest with a fresh run ID for output dir
func NewWriter(dir, account, format string, targetServings, referenceServings int) *Writer {
	return &Writer{
		dir: dir,
		manifest: Manifest{
			RunID:             uuid.NewString(),
			Account:           account,
			Format:            format,
			TargetServings:    targetServings,
			ReferenceServings: referenceServings,
			StartedAt:         time.Now().UTC(),
		},
	}
}

// RunID identifies this run
func (w *Writer) RunID() string {
	return w.manifest.RunID
}

// Add records one recipe outcome. The file size is read from disk when the
// entry names a file.
func (w *Writer) Add(e Entry) {
	if e.ExportedAt.IsZero() {
		e.ExportedAt = time.Now().UTC()
	}
	if e.File != "" && e.FileSize == 0 {
		if info, err := os.Stat(e.File); err == nil {
			e.FileSize = info.Size()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.manifest.Entries = append(w.manifest.Entries, e)
}

// Path is where Close writes the manifest
func (w *Writer) Path() string {
	return filepath.Join(w.dir, FileName)
}

// Close stamps the finish time, sorts the entries by recipe ID and writes
// the manifest atomically. It returns a copy of what was written.
func (w *Writer) Close() (*Manifest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.manifest.FinishedAt = time.Now().UTC()
	sort.SliceStable(w.manifest.Entries, func(i, j int) bool {
		return w.manifest.Entries[i].RecipeID < w.manifest.Entries[j].RecipeID
	})

	data, err := json.MarshalIndent(w.manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := w.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write manifest file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to replace manifest file: %w", err)
	}

	cp := w.manifest
	cp.Entries = append([]Entry(nil), w.manifest.Entries...)
	return &cp, nil
}

// Load reads the manifest in dir
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Exists checks if a manifest has been written to dir
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}
