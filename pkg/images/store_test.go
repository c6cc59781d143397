package images

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"kptnexport/pkg/logger"
)

func TestFilename(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{12}_step\d{2}_[0-9a-f]{8}\.[a-z]+$`)

	tests := []struct {
		name    string
		id      string
		step    int
		url     string
		wantExt string
	}{
		{"jpg", "5e5390e2740000cdf1381c64", 1, "https://img.example.com/a/b.jpg", ".jpg"},
		{"png with query", "5e5390e2740000cdf1381c64", 12, "https://img.example.com/b.PNG?w=800", ".png"},
		{"no extension", "5e5390e2740000cdf1381c64", 3, "https://img.example.com/image/abc", ".jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filename(tt.id, tt.step, tt.url)
			if !pattern.MatchString(got) {
				t.Errorf("Filename() = %q does not match expected layout", got)
			}
			if filepath.Ext(got) != tt.wantExt {
				t.Errorf("extension = %q, want %q", filepath.Ext(got), tt.wantExt)
			}
			if got != Filename(tt.id, tt.step, tt.url) {
				t.Error("Filename() should be stable")
			}
		})
	}

	a := Filename("r1", 1, "https://img.example.com/1.jpg")
	b := Filename("r1", 1, "https://img.example.com/2.jpg")
	if a == b {
		t.Error("different URLs should produce different names")
	}
	if got := Filename("abc", 2, "x.jpg"); got[:11] != "abc_step02_" {
		t.Errorf("short IDs should be kept whole, got %q", got)
	}
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.jpg"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("Expected existing image to be indexed, count = %d", store.Count())
	}
	if !store.IsDownloaded("existing.jpg") {
		t.Error("existing.jpg should count as downloaded")
	}
	if store.IsDownloaded("new.jpg") {
		t.Error("new.jpg should not be downloaded yet")
	}

	data := []byte{0xff, 0xd8, 0xff}
	if err := store.Save("new.jpg", bytes.NewReader(data)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	content, err := os.ReadFile(store.Path("new.jpg"))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if !bytes.Equal(content, data) {
		t.Error("saved content mismatch")
	}
	if _, err := os.Stat(store.Path("new.jpg") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be gone")
	}
	if !store.IsDownloaded("new.jpg") {
		t.Error("new.jpg should be downloaded after Save")
	}
}

func TestStoreDetectsFilesWrittenLater(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "late.jpg"), []byte("x"), 0644)
	if !store.IsDownloaded("late.jpg") {
		t.Error("IsDownloaded should fall back to the filesystem")
	}
}

func TestStoreRejectsPathTraversal(t *testing.T) {
	store, err := NewStore(t.TempDir(), logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "..", "../evil.jpg", "a/b.jpg"} {
		if err := store.Save(name, bytes.NewReader(nil)); !errors.Is(err, ErrInvalidFilename) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidFilename", name, err)
		}
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "images"), logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"keep.jpg", "old1.jpg", "old2.png"} {
		if err := store.Save(name, bytes.NewReader([]byte(name))); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.Cleanup([]string{"keep.jpg"})
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if len(removed) != 2 || removed[0] != "old1.jpg" || removed[1] != "old2.png" {
		t.Errorf("removed = %v", removed)
	}
	if !store.IsDownloaded("keep.jpg") {
		t.Error("keep.jpg should survive cleanup")
	}
	if store.IsDownloaded("old1.jpg") {
		t.Error("old1.jpg should be removed")
	}
	if store.Count() != 1 {
		t.Errorf("Count() = %d after cleanup", store.Count())
	}
}
