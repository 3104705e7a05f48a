package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// Default backoff parameters.
const (
	DefaultBackoffBase = 100 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second
)

// BackoffStrategy computes the wait before the next attempt.
//
// Attempt is the 1-based number of the attempt that just failed and err is
// its error. Implementations must be safe for concurrent use.
type BackoffStrategy interface {
	Delay(attempt int, err error) time.Duration
}

// BackoffFunc adapts a plain function to BackoffStrategy.
type BackoffFunc func(attempt int, err error) time.Duration

// Delay calls f.
func (f BackoffFunc) Delay(attempt int, err error) time.Duration {
	return f(attempt, err)
}

// ExponentialBackoff waits Base * Multiplier^(attempt-1), capped at Max.
type ExponentialBackoff struct {
	Base time.Duration

	// Max caps the delay when positive.
	Max time.Duration

	// Multiplier defaults to 2.
	Multiplier float64
}

// DefaultBackoff returns the strategy used when none is configured.
func DefaultBackoff() BackoffStrategy {
	return ExponentialBackoff{Base: DefaultBackoffBase, Max: DefaultBackoffMax}
}

// Delay implements BackoffStrategy.
func (e ExponentialBackoff) Delay(attempt int, _ error) time.Duration {
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2
	}
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Base) * math.Pow(mult, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return clampDelay(time.Duration(d))
}

// LinearBackoff waits Base * attempt, capped at Max.
type LinearBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay implements BackoffStrategy.
func (l LinearBackoff) Delay(attempt int, _ error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := l.Base * time.Duration(attempt)
	if l.Base > 0 && l.Base > time.Duration(math.MaxInt64)/time.Duration(attempt) {
		d = time.Duration(math.MaxInt64)
	}
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return clampDelay(d)
}

// ConstantBackoff always waits the same duration.
type ConstantBackoff time.Duration

// Delay implements BackoffStrategy.
func (c ConstantBackoff) Delay(int, error) time.Duration {
	return clampDelay(time.Duration(c))
}

// WithJitter adds a random extra of up to fraction*delay to next's result.
// A fraction outside (0, 1] is treated as 0.25.
func WithJitter(next BackoffStrategy, fraction float64) BackoffStrategy {
	if fraction <= 0 || fraction > 1 {
		fraction = 0.25
	}
	return BackoffFunc(func(attempt int, err error) time.Duration {
		d := next.Delay(attempt, err)
		spread := int64(float64(d) * fraction)
		if spread <= 0 {
			return d
		}
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		return d + time.Duration(rand.Int64N(spread))
	})
}

func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
