// Package health reports whether a process running resilience primitives can
// take more work.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// Aggregator runs registered checkers, each bounded by its own deadline race,
// and folds the results into one status. LimiterChecker turns a Limiter's
// queue depth into a status.
//
// # Basic Usage
//
//	limiter, _ := resilience.NewLimiter(resilience.LimiterConfig{Name: "uploads", Concurrency: 8})
//
//	agg := health.NewAggregator(health.AggregatorConfig{Timeout: 2 * time.Second})
//	agg.Register("uploads", health.NewLimiterChecker(limiter, health.LimiterCheckerConfig{
//	    DegradedPending:  16,
//	    UnhealthyPending: 128,
//	}))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// # HTTP Endpoints
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// registers /healthz (liveness), /readyz (readiness), /health (all checks as
// JSON) and /health/{name} (one check). Degraded answers 200; unhealthy
// answers 503.
package health
