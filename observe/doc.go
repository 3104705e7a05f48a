// Package observe provides observability for tasks run through the
// resilience package.
//
// It wires OpenTelemetry tracing and metrics and a zap-backed structured
// logger around task execution, and adapts the resilience observer hooks
// (retry, deadline race, limiter) into log lines and gauges. The resilience
// core never logs or records metrics itself; everything flows through the
// callbacks built here.
package observe
