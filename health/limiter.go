package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/taskguard/resilience"
)

// LimiterCheckerConfig configures the limiter saturation checker. Thresholds
// are queue depths; zero selects a default relative to the limiter's current
// limit.
type LimiterCheckerConfig struct {
	// DegradedPending is the queue depth at which the limiter is degraded.
	// Default: the current limit
	DegradedPending int

	// UnhealthyPending is the queue depth at which the limiter is unhealthy.
	// Default: ten times the current limit
	UnhealthyPending int
}

// LimiterChecker reports a resilience.Limiter as degraded or unhealthy when
// its queue backs up.
type LimiterChecker struct {
	limiter *resilience.Limiter
	config  LimiterCheckerConfig
}

// NewLimiterChecker creates a checker for l.
func NewLimiterChecker(l *resilience.Limiter, config LimiterCheckerConfig) *LimiterChecker {
	return &LimiterChecker{limiter: l, config: config}
}

// Name returns "limiter" or "limiter:<name>" for named limiters.
func (c *LimiterChecker) Name() string {
	if name := c.limiter.Name(); name != "" {
		return "limiter:" + name
	}
	return "limiter"
}

// Check samples the limiter state.
func (c *LimiterChecker) Check(ctx context.Context) Result {
	s := c.limiter.State()

	degraded := c.config.DegradedPending
	if degraded <= 0 {
		degraded = s.Limit
	}
	unhealthy := c.config.UnhealthyPending
	if unhealthy <= 0 {
		unhealthy = 10 * s.Limit
	}

	var r Result
	switch {
	case s.Pending >= unhealthy:
		r = Unhealthy(fmt.Sprintf("%d tasks queued", s.Pending), ErrQueueSaturated)
	case s.Pending >= degraded:
		r = Degraded(fmt.Sprintf("%d tasks queued", s.Pending))
	default:
		r = Healthy("accepting work")
	}

	return r.WithDetails(map[string]any{
		"limit":     s.Limit,
		"active":    s.Active,
		"pending":   s.Pending,
		"processed": s.Processed,
		"cancelled": s.Cancelled,
		"cleared":   s.Cleared,
	})
}
