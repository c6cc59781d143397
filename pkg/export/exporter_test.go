package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"kptnexport/pkg/config"
	errs "kptnexport/pkg/errors"
	"kptnexport/pkg/images"
	"kptnexport/pkg/kptncook"
	"kptnexport/pkg/logger"
	"kptnexport/pkg/manifest"
	"kptnexport/pkg/ui"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockKptnCookServer serves login, favorites, recipe search and images
type mockKptnCookServer struct {
	server     *httptest.Server
	favorites  []string
	recipes    map[string]string
	mu         sync.Mutex
	imageCalls int32
}

func newMockKptnCookServer(t *testing.T) *mockKptnCookServer {
	m := &mockKptnCookServer{
		favorites: []string{"r1", "r2", "r3"},
		recipes:   make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req kptncook.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(kptncook.LoginResponse{AccessToken: "token"})
	})
	mux.HandleFunc("/favorites", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		json.NewEncoder(w).Encode(kptncook.FavoritesResponse{Favorites: m.favorites})
	})
	mux.HandleFunc("/recipes/search", func(w http.ResponseWriter, r *http.Request) {
		var q []kptncook.SearchQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		require.Len(t, q, 1)

		m.mu.Lock()
		body, ok := m.recipes[q[0].Identifier]
		m.mu.Unlock()
		if !ok {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte("[" + body + "]"))
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.imageCalls, 1)
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)

	m.recipes["r1"] = fmt.Sprintf(`{
		"_id": {"$oid": "r1"},
		"title": "Ofen-Gnocchi",
		"preparationTime": 10,
		"cookingTime": 20,
		"ingredients": [
			{"quantity": 200, "measure": "g", "ingredient": {"title": "Gnocchi"}},
			{"quantity": 0.25, "ingredient": {"title": "Zwiebel"}}
		],
		"steps": [
			{"title": "Ofen vorheizen.", "image": {"url": "%s/img/r1-step1.jpg"}},
			{"title": "Backen."}
		]
	}`, m.server.URL)
	m.recipes["r2"] = `{
		"_id": {"$oid": "r2"},
		"title": "Linsensalat",
		"ingredients": [{"quantity": 100, "measure": "g", "ingredient": {"title": "Linsen"}}],
		"steps": [{"title": "Alles mischen."}]
	}`
	return m
}

func (m *mockKptnCookServer) addRecipe(id, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipes[id] = body
}

func (m *mockKptnCookServer) setFavorites(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.favorites = ids
}

func (m *mockKptnCookServer) config(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.KptnCook.APIKey = "test-key"
	cfg.KptnCook.Email = "cook@example.com"
	cfg.KptnCook.Password = "secret"
	cfg.KptnCook.BaseURL = m.server.URL
	cfg.KptnCook.MobileBaseURL = m.server.URL
	cfg.KptnCook.Timeout = 5 * time.Second
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Output.Format = config.FormatMarkdown
	cfg.RateLimit.RequestsPerMinute = 6000
	cfg.RateLimit.BurstSize = 100
	return cfg
}

func (m *mockKptnCookServer) client(cfg *config.Config) *kptncook.Client {
	return kptncook.NewClient(&cfg.KptnCook, kptncook.WithLogger(logger.NewNopLogger()))
}

// recordingReporter remembers stages and failures
type recordingReporter struct {
	ui.NopReporter
	mu       sync.Mutex
	stages   []string
	failed   []string
	warnings []string
	paused   atomic.Bool
}

func (r *recordingReporter) SetStage(stage string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordingReporter) FailItem(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, id)
}

func (r *recordingReporter) LogWarning(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) IsPaused() bool {
	return r.paused.Load()
}

// fakeUploader records uploaded object names
type fakeUploader struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeUploader) Upload(ctx context.Context, file, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if _, err := os.Stat(file); err != nil {
		return "", err
	}
	f.names = append(f.names, name)
	return "s3://bucket/recipes/" + name, nil
}

func newExporter(t *testing.T, cfg *config.Config, client Client, opts ...Option) (*Exporter, string) {
	t.Helper()
	cpDir := t.TempDir()
	opts = append([]Option{
		WithLogger(logger.NewNopLogger()),
		WithCheckpointDir(cpDir),
	}, opts...)
	exp, err := New(cfg, client, opts...)
	require.NoError(t, err)
	return exp, cpDir
}

func TestRunExportsFavorites(t *testing.T) {
	mock := newMockKptnCookServer(t)
	cfg := mock.config(t)
	reporter := &recordingReporter{}
	uploader := &fakeUploader{}

	exp, cpDir := newExporter(t, cfg, mock.client(cfg), WithReporter(reporter), WithUploader(uploader))

	summary, err := exp.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Favorites)
	assert.Equal(t, 2, summary.Loaded)
	assert.Equal(t, 2, summary.Rendered)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Images)
	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, 1, summary.ImagesUploaded)
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Files, 2)

	assert.Equal(t, []string{
		ui.StageLogin, ui.StageFavorites, ui.StageLoad, ui.StageImages, ui.StageRender, ui.StageUpload,
	}, reporter.stages)
	assert.Contains(t, reporter.failed, "r3")

	content, err := os.ReadFile(filepath.Join(cfg.Output.BaseDirectory, "Ofen-Gnocchi.md"))
	require.NoError(t, err)
	doc := string(content)
	assert.Contains(t, doc, "# Ofen-Gnocchi")
	assert.Contains(t, doc, "400 g Gnocchi")
	assert.Contains(t, doc, "1/2 Zwiebel")
	imageName := images.Filename("r1", 1, mock.server.URL+"/img/r1-step1.jpg")
	assert.Contains(t, doc, "](images/"+imageName+")")
	assert.FileExists(t, filepath.Join(cfg.ImagePath(), imageName))
	assert.ElementsMatch(t, []string{"Ofen-Gnocchi.md", "Linsensalat.md", "images/" + imageName}, uploader.names)

	m, err := manifest.Load(cfg.Output.BaseDirectory)
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, m.RunID)
	require.Len(t, m.Entries, 3)
	assert.Equal(t, 1, m.Failed())
	assert.Equal(t, "r3", m.Entries[2].RecipeID)
	assert.Contains(t, m.Entries[2].Error, "recipe not found")
	assert.Equal(t, "s3://bucket/recipes/Ofen-Gnocchi.md", m.Entries[0].Uploaded)
	assert.Equal(t, []string{imageName}, m.Entries[0].Images)

	entries, err := os.ReadDir(cpDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "checkpoint is kept while recipes failed")
}

func TestRunResume(t *testing.T) {
	mock := newMockKptnCookServer(t)
	cfg := mock.config(t)
	cpDir := t.TempDir()

	run := func(opts Options) (*Summary, error) {
		exp, err := New(cfg, mock.client(cfg), WithLogger(logger.NewNopLogger()), WithCheckpointDir(cpDir))
		require.NoError(t, err)
		return exp.Run(context.Background(), opts)
	}

	first, err := run(Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)

	_, err = run(Options{})
	assert.ErrorIs(t, err, ErrCheckpointExists)

	mock.addRecipe("r3", `{"_id": {"$oid": "r3"}, "title": "Nachtisch", "steps": [{"title": "Genießen."}]}`)
	imageCalls := atomic.LoadInt32(&mock.imageCalls)

	second, err := run(Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 1, second.Rendered)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, imageCalls, atomic.LoadInt32(&mock.imageCalls), "skipped recipes download nothing")
	assert.FileExists(t, filepath.Join(cfg.Output.BaseDirectory, "Nachtisch.md"))

	entries, err := os.ReadDir(cpDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "checkpoint is removed after a clean run")

	m, err := manifest.Load(cfg.Output.BaseDirectory)
	require.NoError(t, err)
	require.Len(t, m.Entries, 3)
	assert.True(t, m.Entries[0].Skipped)
	assert.Equal(t, 0, m.Failed())
}

func TestRunResumeKeepsDocumentWithSameTitle(t *testing.T) {
	mock := newMockKptnCookServer(t)
	cfg := mock.config(t)
	cpDir := t.TempDir()

	run := func(opts Options) *Summary {
		exp, err := New(cfg, mock.client(cfg), WithLogger(logger.NewNopLogger()), WithCheckpointDir(cpDir))
		require.NoError(t, err)
		summary, err := exp.Run(context.Background(), opts)
		require.NoError(t, err)
		return summary
	}

	// r3 is missing at first, so the checkpoint survives the run
	first := run(Options{})
	require.Equal(t, 1, first.Failed)

	mock.addRecipe("r3", `{
		"_id": {"$oid": "r3"},
		"title": "Ofen-Gnocchi",
		"ingredients": [{"quantity": 1, "ingredient": {"title": "Eis"}}],
		"steps": [{"title": "Servieren."}]
	}`)
	second := run(Options{Resume: true})
	require.Len(t, second.Files, 1)
	assert.Equal(t, "Ofen-Gnocchi_2.md", filepath.Base(second.Files[0]))

	original, err := os.ReadFile(filepath.Join(cfg.Output.BaseDirectory, "Ofen-Gnocchi.md"))
	require.NoError(t, err)
	assert.Contains(t, string(original), "Rezept-ID:** r1")

	added, err := os.ReadFile(second.Files[0])
	require.NoError(t, err)
	assert.Contains(t, string(added), "Rezept-ID:** r3")
	assert.Contains(t, string(added), "2 Eis")
}

func TestRunForceRestart(t *testing.T) {
	mock := newMockKptnCookServer(t)
	cfg := mock.config(t)
	cpDir := t.TempDir()

	for i, opts := range []Options{{}, {ForceRestart: true}} {
		exp, err := New(cfg, mock.client(cfg), WithLogger(logger.NewNopLogger()), WithCheckpointDir(cpDir))
		require.NoError(t, err)
		summary, err := exp.Run(context.Background(), opts)
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, 0, summary.Skipped)
		assert.Equal(t, 2, summary.Rendered)
	}
}

func TestRunLoginFailure(t *testing.T) {
	mock := newMockKptnCookServer(t)
	cfg := mock.config(t)
	cfg.KptnCook.Password = "wrong"
	reporter := &recordingReporter{}

	exp, _ := newExporter(t, cfg, mock.client(cfg), WithReporter(reporter))
	summary, err := exp.Run(context.Background(), Options{})

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "login failed")
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.Equal(t, []string{"login"}, reporter.failed)
	assert.False(t, manifest.Exists(cfg.Output.BaseDirectory))
}

func TestRunNoFavorites(t *testing.T) {
	mock := newMockKptnCookServer(t)
	mock.setFavorites(nil)
	cfg := mock.config(t)

	exp, _ := newExporter(t, cfg, mock.client(cfg))
	_, err := exp.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoFavorites)
}

func TestRunPDF(t *testing.T) {
	mock := newMockKptnCookServer(t)
	mock.setFavorites([]string{"r2"})
	cfg := mock.config(t)
	cfg.Output.Format = config.FormatPDF

	exp, _ := newExporter(t, cfg, mock.client(cfg))
	summary, err := exp.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, summary.Files, 1)

	data, err := os.ReadFile(summary.Files[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
	assert.Equal(t, ".pdf", filepath.Ext(summary.Files[0]))
}

func TestRunCleanupImages(t *testing.T) {
	mock := newMockKptnCookServer(t)
	cfg := mock.config(t)
	cfg.Download.CleanupUnused = true

	require.NoError(t, os.MkdirAll(cfg.ImagePath(), 0755))
	stale := filepath.Join(cfg.ImagePath(), "stale.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	exp, _ := newExporter(t, cfg, mock.client(cfg))
	summary, err := exp.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"stale.jpg"}, summary.Removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(cfg.ImagePath(), images.Filename("r1", 1, mock.server.URL+"/img/r1-step1.jpg")))
}

func TestRunUploadFailureKeepsDocuments(t *testing.T) {
	mock := newMockKptnCookServer(t)
	mock.setFavorites([]string{"r1", "r2"})
	cfg := mock.config(t)
	uploader := &fakeUploader{err: errors.New("access denied")}

	exp, cpDir := newExporter(t, cfg, mock.client(cfg), WithUploader(uploader))
	summary, err := exp.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Rendered)
	assert.Equal(t, 0, summary.Uploaded)
	assert.Equal(t, 2, summary.UploadsFailed)
	assert.Equal(t, 0, summary.Failed)

	entries, err := os.ReadDir(cpDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunPDFUploadsDocumentsOnly(t *testing.T) {
	mock := newMockKptnCookServer(t)
	mock.setFavorites([]string{"r1"})
	cfg := mock.config(t)
	cfg.Output.Format = config.FormatPDF
	uploader := &fakeUploader{}

	exp, _ := newExporter(t, cfg, mock.client(cfg), WithUploader(uploader))
	summary, err := exp.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Images)
	assert.Equal(t, 0, summary.ImagesUploaded)
	assert.Equal(t, []string{"Ofen-Gnocchi.pdf"}, uploader.names)
}

func TestRunCancelledWhilePaused(t *testing.T) {
	mock := newMockKptnCookServer(t)
	cfg := mock.config(t)
	reporter := &recordingReporter{}
	reporter.paused.Store(true)

	exp, _ := newExporter(t, cfg, mock.client(cfg), WithReporter(reporter))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := exp.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoFileExists(t, filepath.Join(cfg.Output.BaseDirectory, "Ofen-Gnocchi.md"))
}

func TestRunResumesAfterPause(t *testing.T) {
	mock := newMockKptnCookServer(t)
	mock.setFavorites([]string{"r2"})
	cfg := mock.config(t)
	reporter := &recordingReporter{}
	reporter.paused.Store(true)

	go func() {
		time.Sleep(300 * time.Millisecond)
		reporter.paused.Store(false)
	}()

	exp, _ := newExporter(t, cfg, mock.client(cfg), WithReporter(reporter))
	start := time.Now()
	summary, err := exp.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Rendered)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestNew(t *testing.T) {
	mock := newMockKptnCookServer(t)

	t.Run("unknown format", func(t *testing.T) {
		cfg := mock.config(t)
		cfg.Output.Format = "docx"
		_, err := New(cfg, mock.client(cfg))
		assert.Error(t, err)
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := New(mock.config(t), nil)
		assert.Error(t, err)
	})

	t.Run("custom denominators", func(t *testing.T) {
		cfg := mock.config(t)
		cfg.Quantity.Denominators = []int{1, 2}
		exp, err := New(cfg, mock.client(cfg))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, exp.Formatter().Denominators())
	})

	t.Run("invalid denominators", func(t *testing.T) {
		cfg := mock.config(t)
		cfg.Quantity.Denominators = []int{0}
		_, err := New(cfg, mock.client(cfg))
		assert.Error(t, err)
	})
}

func TestSummaryString(t *testing.T) {
	s := &Summary{Favorites: 5, Rendered: 3, Skipped: 1, Failed: 1, Images: 4, Duration: 2 * time.Second}
	got := s.String()
	assert.True(t, strings.HasPrefix(got, "3 of 5 recipes exported, 1 already done, 1 failed, 4 images in "), got)
}
