package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int

	// WaitOnLimit waits for a token instead of returning error.
	// Default: false
	WaitOnLimit bool

	// MaxWait is the maximum time to wait for a token.
	// Default: 1 second
	MaxWait time.Duration
}

// RateLimiter gates how often operations may start. It complements Limiter,
// which bounds how many run at once.
type RateLimiter struct {
	config RateLimiterConfig

	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	// Apply defaults
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}

	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow reports whether an operation may start now, consuming a token if so.
func (rl *RateLimiter) Allow() bool {
	return rl.bucket().Allow()
}

// AllowN reports whether n operations may start now.
func (rl *RateLimiter) AllowN(n int) bool {
	return rl.bucket().AllowN(time.Now(), n)
}

// Wait blocks until a token is available, MaxWait passes, or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if ctx.Err() != nil {
		return abortError(ctx)
	}

	r := rl.bucket().Reserve()
	if !r.OK() {
		return ErrRateLimitExceeded
	}
	delay := r.Delay()
	if delay > rl.config.MaxWait {
		r.Cancel()
		return ErrRateLimitExceeded
	}
	if !sleep(ctx, delay) {
		r.Cancel()
		return abortError(ctx)
	}
	return nil
}

// Execute runs the operation if allowed by rate limit.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := rl.admit(ctx); err != nil {
		return err
	}
	return op(ctx)
}

func (rl *RateLimiter) admit(ctx context.Context) error {
	if rl.config.WaitOnLimit {
		return rl.Wait(ctx)
	}
	if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return nil
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.bucket().Tokens()
}

// Reset restores the bucket to full capacity.
func (rl *RateLimiter) Reset() {
	fresh := rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst)
	rl.mu.Lock()
	rl.limiter = fresh
	rl.mu.Unlock()
}

func (rl *RateLimiter) bucket() *rate.Limiter {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter
}
