package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kptnexport/pkg/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTokenBucket(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	tb := NewTokenBucket(5, time.Second)
	tb.now = clock.Now
	tb.Reset()

	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// 5 tokens per second: a bit over 200ms buys one token
	clock.Advance(210 * time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected one token after partial refill")
	}
	if tb.Allow() {
		t.Error("Expected only one token after partial refill")
	}

	clock.Advance(10 * time.Second)
	if got := tb.Available(); got != 5 {
		t.Errorf("Expected refill capped at capacity 5, got %d", got)
	}

	tb.tokens = 0
	tb.Reset()
	if tb.Available() != 5 {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1, 50*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("second Wait() should have blocked for a refill, took %v", elapsed)
	}
}

func TestTokenBucketWaitCancelled(t *testing.T) {
	tb := NewPerMinute(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if !tb.Allow() {
		t.Fatal("Expected initial token")
	}
	if err := tb.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestSlidingWindow(t *testing.T) {
	sw := NewSlidingWindow(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !sw.Allow() {
			t.Errorf("Expected request %d to be allowed", i+1)
		}
	}

	if sw.Allow() {
		t.Error("Expected request to be denied when limit is reached")
	}

	if err := sw.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	sw.Reset()
	if len(sw.requests) != 0 {
		t.Error("Expected requests to be cleared after reset")
	}
}

func TestFromSettings(t *testing.T) {
	l := FromSettings(config.RateLimitConfig{RequestsPerMinute: 120, BurstSize: 3})
	tb, ok := l.(*TokenBucket)
	if !ok {
		t.Fatalf("FromSettings() returned %T", l)
	}
	if tb.Available() != 3 {
		t.Errorf("Expected burst of 3, got %d", tb.Available())
	}
	if tb.rate != 2 {
		t.Errorf("Expected 2 tokens per second, got %v", tb.rate)
	}
}

func TestSlidingWindowClampsLimit(t *testing.T) {
	for _, max := range []int{0, -5} {
		sw := NewSlidingWindow(max, time.Second)
		if !sw.Allow() {
			t.Errorf("NewSlidingWindow(%d) should allow one request", max)
		}
		if sw.Allow() {
			t.Errorf("NewSlidingWindow(%d) should allow only one request per window", max)
		}
	}
}

func TestFromSettingsSlidingWindow(t *testing.T) {
	l := FromSettings(config.RateLimitConfig{
		Strategy:          config.RateLimitSlidingWindow,
		RequestsPerMinute: 2,
		BurstSize:         10,
	})
	sw, ok := l.(*SlidingWindow)
	if !ok {
		t.Fatalf("FromSettings() returned %T", l)
	}
	if sw.maxRequests != 2 || sw.windowSize != time.Minute {
		t.Errorf("Expected 2 requests per minute, got %d per %v", sw.maxRequests, sw.windowSize)
	}
	if !sw.Allow() || !sw.Allow() {
		t.Error("Expected the first two requests to be allowed")
	}
	if sw.Allow() {
		t.Error("Expected the third request to be denied")
	}
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("Unlimited should always allow")
		}
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}
