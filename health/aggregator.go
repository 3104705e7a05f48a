package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/taskguard/resilience"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds each individual check.
	// Default: 10 seconds
	Timeout time.Duration

	// Concurrency bounds how many checks run at once. Zero runs all of them
	// in parallel; 1 runs them one after another.
	Concurrency int
}

// Aggregator combines multiple health checkers into a single composite check.
// Every check races its own deadline, so one stuck component reports as
// unhealthy instead of stalling the probe.
type Aggregator struct {
	config   AggregatorConfig
	mu       sync.RWMutex
	checkers map[string]Checker
	order    []string
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency < 0 {
		cfg.Concurrency = 0
	}

	return &Aggregator{
		config:   cfg,
		checkers: make(map[string]Checker),
	}
}

// Register adds a health checker. Registering a name again replaces the
// checker but keeps its position.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[name]; !exists {
		a.order = append(a.order, name)
	}
	a.checkers[name] = checker
}

// Unregister removes a health checker from the aggregator.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.checkers, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// CheckerNames returns the names of all registered checkers in registration
// order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Check runs a single named health check.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.checkers[name]
	a.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrCheckerNotFound, name)
	}

	start := time.Now()
	r, err := resilience.RaceDeadline(ctx, a.task(checker), resilience.DeadlineOptions[Result]{
		Timeout: a.config.Timeout,
	})
	if err != nil {
		return a.failed(err, start), nil
	}
	return r, nil
}

// CheckAll runs all registered health checks and returns the results keyed by
// name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	tasks := make([]resilience.Task[Result], len(names))
	for i, name := range names {
		tasks[i] = a.task(a.checkers[name])
	}
	a.mu.RUnlock()

	results := make(map[string]Result, len(names))
	if len(tasks) == 0 {
		return results
	}

	start := time.Now()
	// Options are normalized by NewAggregator and cannot fail validation.
	settled, _ := resilience.RaceAllSettled(ctx, tasks, resilience.BatchOptions[Result]{
		DeadlineOptions: resilience.DeadlineOptions[Result]{Timeout: a.config.Timeout},
		Concurrency:     a.config.Concurrency,
	})
	for i, s := range settled {
		if s.OK() {
			results[names[i]] = s.Value
		} else {
			results[names[i]] = a.failed(s.Err, start)
		}
	}
	return results
}

func (a *Aggregator) task(checker Checker) resilience.Task[Result] {
	return func(ctx context.Context) (Result, error) {
		start := time.Now()
		r := checker.Check(ctx)
		r.Duration = time.Since(start)
		if r.Timestamp.IsZero() {
			r.Timestamp = start
		}
		return r, nil
	}
}

// failed turns a lost deadline race into an unhealthy result.
func (a *Aggregator) failed(err error, start time.Time) Result {
	var r Result
	switch {
	case errors.Is(err, resilience.ErrTimeout):
		r = Unhealthy("check timed out", fmt.Errorf("%w: %w", ErrCheckTimeout, err))
	case resilience.IsAbort(err):
		r = Unhealthy("check aborted", fmt.Errorf("%w: %w", ErrCheckAborted, err))
	case errors.Is(err, resilience.ErrTaskPanicked):
		r = Unhealthy("check panicked", fmt.Errorf("%w: %w", ErrCheckPanicked, err))
	default:
		r = Unhealthy(err.Error(), err)
	}
	r.Timestamp = start
	r.Duration = time.Since(start)
	return r
}

// OverallStatus returns the worst status in results. No results is healthy.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, result := range results {
		if result.Status > overall {
			overall = result.Status
		}
	}
	return overall
}

// Checker returns the aggregator as a single Checker.
func (a *Aggregator) Checker() Checker {
	return &aggregatorChecker{agg: a}
}

type aggregatorChecker struct {
	agg *Aggregator
}

func (c *aggregatorChecker) Name() string {
	return "aggregate"
}

func (c *aggregatorChecker) Check(ctx context.Context) Result {
	results := c.agg.CheckAll(ctx)
	status := c.agg.OverallStatus(results)

	details := make(map[string]any, len(results))
	for name, result := range results {
		details[name] = map[string]any{
			"status":   result.Status.String(),
			"message":  result.Message,
			"duration": result.Duration.String(),
		}
	}

	var message string
	switch status {
	case StatusHealthy:
		message = "all checks passed"
	case StatusDegraded:
		message = "some checks degraded"
	default:
		message = "some checks failed"
	}

	return Result{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}
