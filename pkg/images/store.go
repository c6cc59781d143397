package images

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"kptnexport/pkg/logger"

	"github.com/cespare/xxhash/v2"
)

const (
	// DefaultExtension is used when the URL path has none
	DefaultExtension = ".jpg"

	recipeIDPrefixLen = 12
	tmpSuffix         = ".tmp"
)

// ErrInvalidFilename is returned for names that would escape the store directory
var ErrInvalidFilename = errors.New("invalid image filename")

// Filename returns the stable local name for a step image:
// <recipeID[:12]>_step<NN>_<hash8><ext>. The hash is taken over the full
// URL so a changed image gets a new file.
func Filename(recipeID string, step int, imageURL string) string {
	id := recipeID
	if len(id) > recipeIDPrefixLen {
		id = id[:recipeIDPrefixLen]
	}
	if id == "" {
		id = "recipe"
	}
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(imageURL))
	return fmt.Sprintf("%s_step%02d_%s%s", id, step, sum[:8], extension(imageURL))
}

func extension(imageURL string) string {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" || len(ext) > 5 {
		return DefaultExtension
	}
	return ext
}

// Store manages the image directory and remembers which files exist
type Store struct {
	dir    string
	known  map[string]bool
	mu     sync.RWMutex
	logger logger.Logger
}

// NewStore creates dir if needed and indexes the images already in it
func NewStore(dir string, log logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	s := &Store{
		dir:    dir,
		known:  make(map[string]bool),
		logger: log,
	}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("failed to scan image directory: %w", err)
	}
	return s, nil
}

func (s *Store) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && !strings.HasSuffix(entry.Name(), tmpSuffix) {
			s.known[entry.Name()] = true
		}
	}
	return nil
}

// Dir returns the image directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path of filename inside the store
func (s *Store) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// IsDownloaded reports whether filename is already on disk
func (s *Store) IsDownloaded(filename string) bool {
	s.mu.RLock()
	known := s.known[filename]
	s.mu.RUnlock()
	if known {
		return true
	}

	if info, err := os.Stat(s.Path(filename)); err == nil && info.Mode().IsRegular() {
		s.mu.Lock()
		s.known[filename] = true
		s.mu.Unlock()
		return true
	}
	return false
}

// Save writes r to filename through a temporary file and a rename, so a
// partially written image is never visible under its final name.
func (s *Store) Save(filename string, r io.Reader) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	target := s.Path(filename)
	tmp := target + tmpSuffix
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save image data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	s.mu.Lock()
	s.known[filename] = true
	s.mu.Unlock()
	return nil
}

// Count returns the number of images in the store
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.known)
}

// Cleanup removes every file in the store that is not listed in keep and
// returns the removed names.
func (s *Store) Cleanup(keep []string) ([]string, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var removed []string
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || keepSet[name] {
			continue
		}
		if err := os.Remove(s.Path(name)); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		removed = append(removed, name)

		s.mu.Lock()
		delete(s.known, name)
		s.mu.Unlock()
	}
	sort.Strings(removed)

	if len(removed) > 0 {
		s.logger.InfoWithFields("removed unused images", map[string]interface{}{
			"count": len(removed),
		})
	}
	return removed, errors.Join(errs...)
}

func validateFilename(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}
