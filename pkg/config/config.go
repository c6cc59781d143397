package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all options for one export run
type Config struct {
	// KptnCook API access and account credentials
	KptnCook KptnCookConfig `yaml:"kptncook" json:"kptncook"`

	// Serving counts used to scale ingredient amounts
	Servings ServingsConfig `yaml:"servings" json:"servings"`

	// Fraction rendering for ingredient quantities
	Quantity QuantityConfig `yaml:"quantity" json:"quantity"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Step image downloads
	Download DownloadConfig `yaml:"download" json:"download"`

	// Rendered documents
	Output OutputConfig `yaml:"output" json:"output"`

	// Optional S3 copy of rendered documents
	Upload UploadConfig `yaml:"upload" json:"upload"`

	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// KptnCookConfig holds API endpoints and credentials
type KptnCookConfig struct {
	APIKey        string        `yaml:"api_key" json:"api_key"`
	Email         string        `yaml:"email" json:"email"`
	Password      string        `yaml:"password" json:"password"`
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	MobileBaseURL string        `yaml:"mobile_base_url" json:"mobile_base_url"`
	Language      string        `yaml:"language" json:"language"`
	UserAgent     string        `yaml:"user_agent" json:"user_agent"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
}

// ServingsConfig holds the serving counts used for scaling.
// KptnCook lists ingredient quantities per portion, so Reference defaults to 1.
type ServingsConfig struct {
	Target    int `yaml:"target" json:"target"`
	Reference int `yaml:"reference" json:"reference"`
}

// QuantityConfig controls how scaled amounts are rendered
type QuantityConfig struct {
	Denominators  []int   `yaml:"denominators" json:"denominators"`
	Tolerance     float64 `yaml:"tolerance" json:"tolerance"`
	DecimalPlaces int     `yaml:"decimal_places" json:"decimal_places"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Strategy          string `yaml:"strategy" json:"strategy"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int    `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig holds retry behaviour for transient API failures
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DownloadConfig holds image download configuration
type DownloadConfig struct {
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
	ImageDirectory      string        `yaml:"image_directory" json:"image_directory"`
	CleanupUnused       bool          `yaml:"cleanup_unused" json:"cleanup_unused"`
}

// OutputConfig holds document output configuration
type OutputConfig struct {
	BaseDirectory     string `yaml:"base_directory" json:"base_directory"`
	Format            string `yaml:"format" json:"format"`
	OverwriteExisting bool   `yaml:"overwrite_existing" json:"overwrite_existing"`
	MaxFilenameLength int    `yaml:"max_filename_length" json:"max_filename_length"`
	PageSize          string `yaml:"page_size" json:"page_size"`
}

// UploadConfig holds the S3 destination for rendered documents
type UploadConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Bucket  string `yaml:"bucket" json:"bucket"`
	Prefix  string `yaml:"prefix" json:"prefix"`
	Region  string `yaml:"region" json:"region"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" json:"on_error"`
	ProgressInterval int    `yaml:"progress_interval" json:"progress_interval"`
	NotificationType string `yaml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

const (
	DefaultBaseURL       = "https://api.production.kptncook.com"
	DefaultMobileBaseURL = "https://mobile.kptncook.com"

	FormatPDF      = "pdf"
	FormatMarkdown = "markdown"

	RateLimitTokenBucket   = "token_bucket"
	RateLimitSlidingWindow = "sliding_window"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		KptnCook: KptnCookConfig{
			BaseURL:       DefaultBaseURL,
			MobileBaseURL: DefaultMobileBaseURL,
			Language:      "de",
			UserAgent:     "kptnexport/1.0",
			Timeout:       30 * time.Second,
		},
		Servings: ServingsConfig{
			Target:    2,
			Reference: 1,
		},
		Quantity: QuantityConfig{
			Denominators:  []int{1, 2, 3, 4, 6, 8},
			Tolerance:     0.01,
			DecimalPlaces: 2,
		},
		RateLimit: RateLimitConfig{
			Strategy:          RateLimitTokenBucket,
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Download: DownloadConfig{
			ConcurrentDownloads: 3,
			DownloadTimeout:     30 * time.Second,
			ImageDirectory:      "images",
			CleanupUnused:       false,
		},
		Output: OutputConfig{
			BaseDirectory:     "export",
			Format:            FormatPDF,
			OverwriteExisting: true,
			MaxFilenameLength: 50,
			PageSize:          "A4",
		},
		Upload: UploadConfig{
			Prefix: "recipes/",
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			ProgressInterval: 5,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// envBinding binds one environment variable to a config field
type envBinding struct {
	name  string
	apply func(c *Config, value string) error
}

func stringVar(set func(c *Config, v string)) func(*Config, string) error {
	return func(c *Config, v string) error {
		set(c, v)
		return nil
	}
}

func positiveIntVar(name string, set func(c *Config, v int)) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", name, v)
		}
		set(c, n)
		return nil
	}
}

func boolVar(name string, set func(c *Config, v bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s must be a boolean, got %q", name, v)
		}
		set(c, b)
		return nil
	}
}

var envBindings = []envBinding{
	{"KPTNCOOK_API_KEY", stringVar(func(c *Config, v string) { c.KptnCook.APIKey = v })},
	{"KPTNCOOK_EMAIL", stringVar(func(c *Config, v string) { c.KptnCook.Email = v })},
	{"KPTNCOOK_PASSWORD", stringVar(func(c *Config, v string) { c.KptnCook.Password = v })},
	{"KPTNCOOK_BASE_URL", stringVar(func(c *Config, v string) { c.KptnCook.BaseURL = v })},
	{"KPTNCOOK_MOBILE_BASE_URL", stringVar(func(c *Config, v string) { c.KptnCook.MobileBaseURL = v })},
	{"KPTNCOOK_LANGUAGE", stringVar(func(c *Config, v string) { c.KptnCook.Language = v })},
	{"KPTNEXPORT_TARGET_SERVINGS", positiveIntVar("KPTNEXPORT_TARGET_SERVINGS", func(c *Config, v int) { c.Servings.Target = v })},
	{"KPTNEXPORT_REFERENCE_SERVINGS", positiveIntVar("KPTNEXPORT_REFERENCE_SERVINGS", func(c *Config, v int) { c.Servings.Reference = v })},
	{"KPTNEXPORT_OUTPUT_DIR", stringVar(func(c *Config, v string) { c.Output.BaseDirectory = v })},
	{"KPTNEXPORT_IMAGE_DIR", stringVar(func(c *Config, v string) { c.Download.ImageDirectory = v })},
	{"KPTNEXPORT_FORMAT", stringVar(func(c *Config, v string) { c.Output.Format = strings.ToLower(v) })},
	{"KPTNEXPORT_CONCURRENT_DOWNLOADS", positiveIntVar("KPTNEXPORT_CONCURRENT_DOWNLOADS", func(c *Config, v int) { c.Download.ConcurrentDownloads = v })},
	{"KPTNEXPORT_RATE_LIMIT_STRATEGY", stringVar(func(c *Config, v string) { c.RateLimit.Strategy = strings.ToLower(v) })},
	{"KPTNEXPORT_REQUESTS_PER_MINUTE", positiveIntVar("KPTNEXPORT_REQUESTS_PER_MINUTE", func(c *Config, v int) { c.RateLimit.RequestsPerMinute = v })},
	{"KPTNEXPORT_S3_BUCKET", stringVar(func(c *Config, v string) {
		c.Upload.Bucket = v
		c.Upload.Enabled = true
	})},
	{"KPTNEXPORT_S3_PREFIX", stringVar(func(c *Config, v string) { c.Upload.Prefix = v })},
	{"AWS_REGION", stringVar(func(c *Config, v string) {
		if c.Upload.Region == "" {
			c.Upload.Region = v
		}
	})},
	{"KPTNEXPORT_NOTIFICATIONS_ENABLED", boolVar("KPTNEXPORT_NOTIFICATIONS_ENABLED", func(c *Config, v bool) { c.Notifications.Enabled = v })},
	{"KPTNEXPORT_LOG_LEVEL", stringVar(func(c *Config, v string) { c.Logging.Level = v })},
	{"KPTNEXPORT_LOG_FILE", stringVar(func(c *Config, v string) { c.Logging.File = v })},
}

// LoadFromEnv overlays environment variables onto the configuration.
// Malformed numeric or boolean values are reported together.
func (c *Config) LoadFromEnv() error {
	var errs []error
	for _, b := range envBindings {
		value, ok := os.LookupEnv(b.name)
		if !ok || value == "" {
			continue
		}
		if err := b.apply(c, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil // no config file is fine
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// FindConfigFile returns the first existing config file in the standard locations
func FindConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".kptnexport.yaml",
		".kptnexport.yml",
	}
	if home != "" {
		locations = append(locations,
			filepath.Join(home, ".config", "kptnexport", "config.yaml"),
			filepath.Join(home, ".config", "kptnexport", "config.yml"),
			filepath.Join(home, ".kptnexport.yaml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// DefaultConfigPath is where `config init` writes when no path is given
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kptnexport.yaml"
	}
	return filepath.Join(home, ".config", "kptnexport", "config.yaml")
}

// Validate checks that the configuration can drive an export.
// Credentials are checked separately by ValidateCredentials since they may
// come from a credential store.
func (c *Config) Validate() error {
	var errs []error

	if c.KptnCook.BaseURL == "" {
		errs = append(errs, errors.New("kptncook base URL is required"))
	}
	if c.KptnCook.MobileBaseURL == "" {
		errs = append(errs, errors.New("kptncook mobile base URL is required"))
	}
	if c.KptnCook.Timeout <= 0 {
		errs = append(errs, errors.New("API timeout must be positive"))
	}

	if c.Servings.Target <= 0 {
		errs = append(errs, errors.New("target servings must be positive"))
	}
	if c.Servings.Reference <= 0 {
		errs = append(errs, errors.New("reference servings must be positive"))
	}

	if len(c.Quantity.Denominators) == 0 {
		errs = append(errs, errors.New("at least one quantity denominator is required"))
	}
	for _, d := range c.Quantity.Denominators {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("quantity denominators must be positive, got %d", d))
			break
		}
	}
	if c.Quantity.Tolerance < 0 {
		errs = append(errs, errors.New("quantity tolerance cannot be negative"))
	}
	if c.Quantity.DecimalPlaces < 1 || c.Quantity.DecimalPlaces > 6 {
		errs = append(errs, errors.New("quantity decimal places must be between 1 and 6"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	switch c.RateLimit.Strategy {
	case "", RateLimitTokenBucket, RateLimitSlidingWindow:
	default:
		errs = append(errs, fmt.Errorf("unsupported rate limit strategy %q", c.RateLimit.Strategy))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.ImageDirectory == "" {
		errs = append(errs, errors.New("image directory is required"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	switch strings.ToLower(c.Output.Format) {
	case FormatPDF, FormatMarkdown:
	default:
		errs = append(errs, fmt.Errorf("unsupported output format %q", c.Output.Format))
	}
	if c.Output.MaxFilenameLength <= 0 {
		errs = append(errs, errors.New("max filename length must be positive"))
	}

	if c.Upload.Enabled && c.Upload.Bucket == "" {
		errs = append(errs, errors.New("upload bucket is required when upload is enabled"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	return errors.Join(errs...)
}

// ValidateCredentials checks that login is possible
func (c *Config) ValidateCredentials() error {
	var errs []error
	if c.KptnCook.APIKey == "" {
		errs = append(errs, errors.New("KptnCook API key is required (KPTNCOOK_API_KEY)"))
	}
	if c.KptnCook.Email == "" {
		errs = append(errs, errors.New("KptnCook email is required (KPTNCOOK_EMAIL)"))
	}
	if c.KptnCook.Password == "" {
		errs = append(errs, errors.New("KptnCook password is required (KPTNCOOK_PASSWORD)"))
	}
	return errors.Join(errs...)
}

// ImagePath returns the image directory, relative paths resolved against the
// output directory.
func (c *Config) ImagePath() string {
	if filepath.IsAbs(c.Download.ImageDirectory) {
		return c.Download.ImageDirectory
	}
	return filepath.Join(c.Output.BaseDirectory, c.Download.ImageDirectory)
}

// Redacted returns a copy with secrets masked, suitable for printing
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Quantity.Denominators = append([]int(nil), c.Quantity.Denominators...)
	cp.KptnCook.APIKey = mask(c.KptnCook.APIKey)
	cp.KptnCook.Password = mask(c.KptnCook.Password)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// Save writes the configuration as YAML with owner-only permissions
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in flags with non-zero values override.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Output.Format = strings.ToLower(v)
	}
	if v, ok := flags["servings"].(int); ok && v > 0 {
		c.Servings.Target = v
	}
	if v, ok := flags["reference-servings"].(int); ok && v > 0 {
		c.Servings.Reference = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.ConcurrentDownloads = v
	}
	if v, ok := flags["rate-limit"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["cleanup-images"].(bool); ok && v {
		c.Download.CleanupUnused = true
	}
	if v, ok := flags["no-overwrite"].(bool); ok && v {
		c.Output.OverwriteExisting = false
	}
	if v, ok := flags["upload"].(bool); ok && v {
		c.Upload.Enabled = true
	}
	if v, ok := flags["bucket"].(string); ok && v != "" {
		c.Upload.Bucket = v
	}
	if v, ok := flags["email"].(string); ok && v != "" {
		c.KptnCook.Email = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
}

// Load loads configuration from all sources with proper precedence:
// command line flags > environment variables > .env file > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".kptnexport.env"))
	}

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
