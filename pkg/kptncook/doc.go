// Package kptncook is a client for the KptnCook recipe API.
//
// A run logs in once with the application key and the user's credentials,
// then uses the returned token to list favorites and resolve each one into
// a full recipe through the mobile search endpoint. Step images are public
// and fetched without the token.
//
// Failures come back as *errors.Error values typed by HTTP status, so
// callers can branch on auth, not_found or rate_limit:
//
//	client := kptncook.NewClient(&cfg.KptnCook,
//		kptncook.WithLimiter(ratelimit.FromSettings(cfg.RateLimit)),
//		kptncook.WithRetry(retry.FromSettings(cfg.Retry, log)),
//	)
//	if err := client.Login(ctx, cfg.KptnCook.Email, cfg.KptnCook.Password); err != nil {
//		return err
//	}
//	ids, err := client.Favorites(ctx)
package kptncook
