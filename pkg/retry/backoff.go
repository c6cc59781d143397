package retry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	errs "kptnexport/pkg/errors"
)

// BackoffStrategy decides how long to wait before the next attempt
type BackoffStrategy interface {
	// NextDelay returns the delay after the given failed attempt (1-based)
	NextDelay(attempt int, err error) time.Duration
}

// ExponentialBackoff doubles (by Multiplier) the delay after every attempt,
// capped at MaxDelay and spread by JitterFactor.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return NewExponentialBackoff(time.Second, 30*time.Second)
}

// NewExponentialBackoff creates a doubling backoff with 10% jitter
func NewExponentialBackoff(base, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    base,
		MaxDelay:     max,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += eb.random()*2*jitter - jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (eb *ExponentialBackoff) random() float64 {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.rnd == nil {
		eb.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return eb.rnd.Float64()
}

// ConstantBackoff waits the same delay after every attempt
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb ConstantBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// ErrorTypeBackoff picks a strategy by the API error type of the failure.
// Rate limited requests back off much longer than network blips.
type ErrorTypeBackoff struct {
	ByType  map[errs.ErrorType]BackoffStrategy
	Default BackoffStrategy
}

// NewErrorTypeBackoff derives per-type strategies from a base delay
func NewErrorTypeBackoff(base, max time.Duration) *ErrorTypeBackoff {
	rateLimitMax := max * 4
	return &ErrorTypeBackoff{
		ByType: map[errs.ErrorType]BackoffStrategy{
			errs.ErrorTypeNetwork:     NewExponentialBackoff(base, max),
			errs.ErrorTypeServerError: NewExponentialBackoff(base*2, max),
			errs.ErrorTypeRateLimit: &ExponentialBackoff{
				BaseDelay:    base * 10,
				MaxDelay:     rateLimitMax,
				Multiplier:   1.5,
				JitterFactor: 0.3,
			},
		},
		Default: NewExponentialBackoff(base, max),
	}
}

func (etb *ErrorTypeBackoff) NextDelay(attempt int, err error) time.Duration {
	if s, ok := etb.ByType[errs.TypeOf(err)]; ok {
		return s.NextDelay(attempt, err)
	}
	if etb.Default == nil {
		return 0
	}
	return etb.Default.NextDelay(attempt, err)
}

// Wait blocks for delay or until ctx is done
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
