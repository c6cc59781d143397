// Package retry re-runs KptnCook API calls that fail transiently.
//
// Only typed API errors marked retryable (network, rate limit, server
// errors) are retried; authentication and not-found failures return
// immediately. The default backoff picks its curve from the error type, so
// a 429 waits far longer than a dropped connection.
//
//	cfg := retry.FromSettings(appCfg.Retry, log)
//	favs, err := retry.DoWithResult(ctx, cfg, func(ctx context.Context) ([]string, error) {
//		return client.Favorites(ctx)
//	})
package retry
