package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"kptnexport/pkg/logger"
)

// CurrentVersion is the checkpoint file format version
const CurrentVersion = 1

// Checkpoint is the persisted state of an export run
type Checkpoint struct {
	Account       string            `json:"account"`
	RunID         string            `json:"run_id,omitempty"`
	Format        string            `json:"format"`
	Exported      map[string]string `json:"exported"` // recipe ID -> output file
	TotalFavorite int               `json:"total_favorites"`
	TotalExported int               `json:"total_exported"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Version       int               `json:"version"`
}

// IsExported reports whether the recipe was already written in this checkpoint
func (c *Checkpoint) IsExported(recipeID string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Exported[recipeID]
	return ok
}

// Manager reads and writes the checkpoint of one account
type Manager struct {
	mu             sync.Mutex
	checkpointPath string
	logger         logger.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger replaces the global logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a manager for account in the platform data directory
func NewManager(account string, opts ...Option) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerInDir(filepath.Join(dataDir, "checkpoints"), account, opts...)
}

// NewManagerInDir creates a manager storing its file under dir
func NewManagerInDir(dir, account string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	m := &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", fileKey(account))),
		logger:         logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Path is the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint and saves it
func (m *Manager) Create(account, format string, totalFavorites int) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Account:       account,
		Format:        format,
		Exported:      make(map[string]string),
		TotalFavorite: totalFavorites,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       CurrentVersion,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"account": account,
		"path":    m.checkpointPath,
	})
	return cp, nil
}

// Load returns the saved checkpoint, or nil when none exists
func (m *Manager) Load() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version > CurrentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, CurrentVersion)
	}
	if cp.Exported == nil {
		cp.Exported = make(map[string]string)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"account":        cp.Account,
		"total_exported": cp.TotalExported,
		"updated_at":     cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(cp)
}

func (m *Manager) save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()
	cp.TotalExported = len(cp.Exported)

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"account":        cp.Account,
		"total_exported": cp.TotalExported,
	})
	return nil
}

// RecordExport marks a recipe as written to file and saves the checkpoint
func (m *Manager) RecordExport(cp *Checkpoint, recipeID, file string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cp.Exported == nil {
		cp.Exported = make(map[string]string)
	}
	cp.Exported[recipeID] = file
	return m.save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// Info summarizes the saved checkpoint for display, or returns nil when
// there is none.
func (m *Manager) Info() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}

	return map[string]interface{}{
		"account":         cp.Account,
		"format":          cp.Format,
		"total_favorites": cp.TotalFavorite,
		"total_exported":  cp.TotalExported,
		"created_at":      cp.CreatedAt,
		"updated_at":      cp.UpdatedAt,
		"age":             time.Since(cp.UpdatedAt),
	}, nil
}

// fileKey turns an account name into a safe file name component
func fileKey(account string) string {
	account = strings.ToLower(strings.TrimSpace(account))
	if account == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range account {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "kptnexport")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "kptnexport")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "kptnexport")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "kptnexport")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
