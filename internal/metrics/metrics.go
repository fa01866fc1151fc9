// Package metrics exposes the Prometheus collectors of the payment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	// LedgerOperations counts engine operations by outcome
	// (committed, replayed, conflict, invalid_state, not_found, invalid, error).
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_ledger_operations_total",
		Help: "Ledger operations by operation and outcome",
	}, []string{"operation", "outcome"})

	ConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_conflict_retries_total",
		Help: "Read-evaluate-write cycles retried after a version conflict",
	}, []string{"operation"})

	HookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_hook_failures_total",
		Help: "Post-commit hooks that returned an error",
	}, []string{"operation"})
)
