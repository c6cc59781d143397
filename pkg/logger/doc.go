// Package logger provides the structured logging interface for kptnexport.
//
// It wraps zerolog behind a small Logger interface so packages can take a
// logger as a dependency and tests can swap in NewTestLogger or
// NewNopLogger. Console output is colored and human readable; when a log
// file is configured every line is also written there as JSON.
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//		return err
//	}
//	log := logger.GetLogger().WithField("component", "export")
//	log.InfoWithFields("Recipe exported", map[string]interface{}{
//		"recipe_id": id,
//		"file":      path,
//	})
//
// Derived loggers (WithField, WithFields, WithError) never modify their
// parent and are safe to share between goroutines.
package logger
