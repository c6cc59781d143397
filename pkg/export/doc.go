// Package export runs a complete favorites export.
//
// An Exporter ties the collaborators of one run together:
//
//   - the KptnCook client logs in, lists favorites and resolves them
//   - the recipe loader converts details with bounded concurrency
//   - the image worker pool downloads step images into the image store
//   - the renderer writes one PDF or Markdown document per recipe
//   - the optional uploader copies every document to S3
//   - the checkpoint records finished recipes so an interrupted run can resume
//   - the manifest describes the outcome of every favorite
//
// Usage:
//
//	client := kptncook.NewClient(&cfg.KptnCook, kptncook.WithLimiter(ratelimit.FromSettings(cfg.RateLimit)))
//	exp, err := export.New(cfg, client, export.WithReporter(ui.NewProgressDisplay(cfg.KptnCook.Email, false)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	summary, err := exp.Run(ctx, export.Options{Resume: true})
//
// Login and favorites failures end the run. A recipe that cannot be loaded
// or rendered is reported, written to the manifest with its error and
// skipped; the run goes on. The checkpoint is removed once a run finishes
// without failures.
package export
