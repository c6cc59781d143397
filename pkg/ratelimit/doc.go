// Package ratelimit paces requests to the KptnCook API.
//
// TokenBucket refills continuously and is what the client uses, sized from
// the rate_limit config section. SlidingWindow caps requests in any window
// and suits hard quotas. Both block in Wait until a slot frees up or the
// context ends.
//
//	limiter := ratelimit.FromSettings(cfg.RateLimit)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
