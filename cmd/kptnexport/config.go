package main

import (
	"fmt"
	"os"
	"path/filepath"

	"kptnexport/pkg/config"
	"kptnexport/pkg/ui"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage kptnexport configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (KPTNCOOK_*, KPTNEXPORT_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to $HOME/.config/kptnexport/config.yaml unless a
different path is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after all sources are merged.

Secrets like the password and API key are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Whether credentials for an export are present`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# kptnexport configuration
#
# Environment variables override this file:
#   KPTNCOOK_EMAIL, KPTNCOOK_PASSWORD, KPTNCOOK_API_KEY
#   KPTNEXPORT_TARGET_SERVINGS, KPTNEXPORT_OUTPUT_DIR, KPTNEXPORT_FORMAT, ...

kptncook:
  # Prefer 'kptnexport auth login' over storing secrets here
  api_key: ""
  email: ""
  password: ""
  language: "de"
  timeout: 30s

servings:
  # Servings the documents are written for
  target: 2
  # Servings the KptnCook amounts refer to
  reference: 1

quantity:
  # Fractions an amount may be shown as
  denominators: [1, 2, 3, 4, 6, 8]
  tolerance: 0.01
  decimal_places: 2

rate_limit:
  # token_bucket allows bursts, sliding_window counts requests per minute
  strategy: token_bucket
  requests_per_minute: 60
  burst_size: 10

retry:
  max_attempts: 3
  base_delay: 1s
  max_delay: 30s

download:
  concurrent_downloads: 3
  download_timeout: 30s
  # Relative paths are resolved against output.base_directory
  image_directory: "images"
  cleanup_unused: false

output:
  base_directory: "export"
  # pdf or markdown
  format: "pdf"
  overwrite_existing: true
  max_filename_length: 50
  page_size: "A4"

upload:
  enabled: false
  bucket: ""
  prefix: "recipes/"
  region: ""

notifications:
  enabled: true
  on_complete: true
  on_error: true

logging:
  # debug, info, warn, error
  level: "info"
  # Optional JSON log file
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your credentials with 'kptnexport auth login'")
	fmt.Println("2. Run 'kptnexport config validate' to check the configuration")
	fmt.Println("3. Start exporting with 'kptnexport export'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (KPTNCOOK_*, KPTNEXPORT_*)")
	fmt.Println("3. .env files")
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path != "" {
		fmt.Printf("4. Configuration file: %s\n", path)
	} else {
		fmt.Println("4. Configuration file: (none found)")
	}
	fmt.Println("5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	ui.PrintSuccess("Configuration is valid")
	if err := cfg.ValidateCredentials(); err != nil {
		ui.PrintWarning("Credentials incomplete", err)
		fmt.Println("Stored accounts from 'kptnexport auth login' are used when the configuration has none.")
	}
	return nil
}
