package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"kptnexport/pkg/auth"
	"kptnexport/pkg/checkpoint"
	"kptnexport/pkg/config"
	"kptnexport/pkg/export"
	"kptnexport/pkg/kptncook"
	"kptnexport/pkg/logger"
	"kptnexport/pkg/ratelimit"
	"kptnexport/pkg/retry"
	"kptnexport/pkg/ui"
	"kptnexport/pkg/ui/tui"
	"kptnexport/pkg/upload"

	"github.com/spf13/cobra"
)

var (
	// Export command flags
	outputDir         string
	outputFormat      string
	targetServings    int
	referenceServings int
	concurrent        int
	rateLimit         int
	accountName       string
	resumeExport      bool
	forceRestart      bool
	useTUI            bool
	uploadS3          bool
	bucket            string
	cleanupImages     bool
	noOverwrite       bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all favorite recipes",
	Long: `Export every favorite recipe of your KptnCook account as PDF or Markdown.

Credentials are taken from, in this order:
  - the account named with --account
  - KPTNCOOK_EMAIL / KPTNCOOK_PASSWORD / KPTNCOOK_API_KEY or the config file
  - the most recently stored account ('kptnexport auth login')

Ingredient amounts are scaled from the reference serving count to
--servings and written as kitchen fractions.`,
	Example: `  # Export to ./export as PDF for 2 people
  kptnexport export

  # Markdown for 4 people into a custom directory
  kptnexport export --format markdown --servings 4 --output ~/Rezepte

  # Continue an interrupted export
  kptnexport export --resume

  # Copy the documents to S3 as well
  kptnexport export --upload --bucket my-recipes`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	f := exportCmd.Flags()
	f.StringVarP(&outputDir, "output", "o", "", "output directory (default: ./export)")
	f.StringVarP(&outputFormat, "format", "f", "", "output format: pdf or markdown")
	f.IntVarP(&targetServings, "servings", "s", 0, "number of servings to scale to (default: 2)")
	f.IntVar(&referenceServings, "reference-servings", 0, "servings the KptnCook amounts refer to (default: 1)")
	f.IntVar(&concurrent, "concurrent", 0, "number of concurrent downloads")
	f.IntVar(&rateLimit, "rate-limit", 0, "API requests per minute")
	f.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	f.BoolVar(&resumeExport, "resume", false, "resume from last checkpoint")
	f.BoolVar(&forceRestart, "force-restart", false, "force restart, ignoring existing checkpoint")
	f.BoolVar(&useTUI, "tui", false, "use interactive terminal UI with real-time progress")
	f.BoolVar(&uploadS3, "upload", false, "upload documents to S3")
	f.StringVar(&bucket, "bucket", "", "S3 bucket for --upload")
	f.BoolVar(&cleanupImages, "cleanup-images", false, "remove images no exported recipe uses")
	f.BoolVar(&noOverwrite, "no-overwrite", false, "fail instead of overwriting existing documents")

	exportCmd.MarkFlagsMutuallyExclusive("resume", "force-restart")
}

func exportFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := cmd.Flags().Changed

	if set("output") {
		flags["output"] = outputDir
	}
	if set("format") {
		flags["format"] = outputFormat
	}
	if set("servings") {
		flags["servings"] = targetServings
	}
	if set("reference-servings") {
		flags["reference-servings"] = referenceServings
	}
	if set("concurrent") {
		flags["concurrent"] = concurrent
	}
	if set("rate-limit") {
		flags["rate-limit"] = rateLimit
	}
	if set("upload") {
		flags["upload"] = uploadS3
	}
	if set("bucket") {
		flags["bucket"] = bucket
	}
	if set("cleanup-images") {
		flags["cleanup-images"] = cleanupImages
	}
	if set("no-overwrite") {
		flags["no-overwrite"] = noOverwrite
	}
	return flags
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(exportFlags(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.GetLogger()

	if err := applyCredentials(cfg, accountName); err != nil {
		auth.ShowQuickLoginHint(os.Stderr)
		return err
	}

	client := kptncook.NewClient(&cfg.KptnCook,
		kptncook.WithLogger(log),
		kptncook.WithLimiter(ratelimit.FromSettings(cfg.RateLimit)),
		kptncook.WithRetry(retry.FromSettings(cfg.Retry, log)),
		kptncook.WithImageTimeout(cfg.Download.DownloadTimeout),
	)

	opts := []export.Option{export.WithLogger(log)}
	if cfg.Upload.Enabled {
		uploader, err := upload.NewFromConfig(ctx, cfg.Upload, log)
		if err != nil {
			return fmt.Errorf("failed to set up upload: %w", err)
		}
		opts = append(opts, export.WithUploader(uploader))
	}

	notifier := ui.NewNotifier(cfg.Notifications.Enabled)
	runOpts := export.Options{Resume: resumeExport, ForceRestart: forceRestart}

	var summary *export.Summary
	if useTUI {
		summary, err = runWithTUI(ctx, cfg, client, runOpts, opts)
	} else {
		ui.PrintInfo("Account", cfg.KptnCook.Email)
		ui.PrintInfo("Output", fmt.Sprintf("%s (%s, %d servings)", cfg.Output.BaseDirectory, cfg.Output.Format, cfg.Servings.Target))

		display := ui.NewProgressDisplay(cfg.KptnCook.Email, verbose)
		var exp *export.Exporter
		exp, err = export.New(cfg, client, append(opts, export.WithReporter(display))...)
		if err != nil {
			return err
		}
		summary, err = exp.Run(ctx, runOpts)
		if err == nil {
			display.Complete(summary.Rendered, summary.Failed, cfg.Output.BaseDirectory)
		}
	}

	if err != nil {
		if errors.Is(err, export.ErrCheckpointExists) {
			ui.PrintWarning("A previous export was interrupted")
			printCheckpointInfo(cfg.KptnCook.Email)
			fmt.Fprintf(os.Stderr, "  Use: %s to continue where you left off\n", ui.Green("--resume"))
			fmt.Fprintf(os.Stderr, "  Use: %s to start fresh\n\n", ui.Yellow("--force-restart"))
		}
		log.WithError(err).Error("Export failed")
		if cfg.Notifications.OnError {
			notifier.SendError("EXPORT FAILED", err.Error())
		}
		return err
	}

	if summary.ManifestPath != "" {
		ui.PrintInfo("Manifest", summary.ManifestPath)
	}
	if cfg.Notifications.OnComplete {
		notifier.SendSuccess("EXPORT COMPLETE", summary.String())
	}
	return nil
}

// runWithTUI runs the export next to the full-screen UI. Quitting the UI
// cancels a running export.
func runWithTUI(ctx context.Context, cfg *config.Config, client *kptncook.Client, runOpts export.Options, opts []export.Option) (*export.Summary, error) {
	terminal := tui.NewTUI()
	exp, err := export.New(cfg, client, append(opts, export.WithReporter(terminal))...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		summary *export.Summary
		err     error
	}
	exportDone := make(chan result, 1)
	go func() {
		summary, err := exp.Run(ctx, runOpts)
		if err != nil {
			terminal.LogError("Export failed: %v", err)
			terminal.Finish("Export failed - press q to exit")
		} else {
			terminal.Finish(summary.String() + " - press q to exit")
		}
		exportDone <- result{summary, err}
	}()

	tuiErr := terminal.Start()
	cancel()
	res := <-exportDone

	if tuiErr != nil {
		logger.GetLogger().WithError(tuiErr).Error("TUI failed")
	}
	return res.summary, res.err
}

// applyCredentials fills the KptnCook credentials of cfg from the stored
// accounts unless config or environment already provide them.
func applyCredentials(cfg *config.Config, account string) error {
	if account == "" && cfg.ValidateCredentials() == nil {
		logger.Info("Using credentials from configuration")
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var stored *auth.Account
	if account != "" {
		stored, err = manager.Retrieve(account)
	} else {
		stored, err = manager.RetrieveDefault()
	}
	if err != nil {
		return fmt.Errorf("no KptnCook credentials found: %w", err)
	}

	cfg.KptnCook.Email = stored.Email
	cfg.KptnCook.Password = stored.Password
	if stored.APIKey != "" {
		cfg.KptnCook.APIKey = stored.APIKey
	}
	logger.WithField("account", stored.Email).Info("Using stored credentials")

	return cfg.ValidateCredentials()
}

// printCheckpointInfo shows how far the interrupted export got
func printCheckpointInfo(account string) {
	mgr, err := checkpoint.NewManager(account)
	if err != nil {
		return
	}
	info, err := mgr.Info()
	if err != nil || info == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "  %d of %d recipes exported, last update %s ago\n",
		info["total_exported"], info["total_favorites"],
		ui.FormatDuration(info["age"].(time.Duration)))
}
