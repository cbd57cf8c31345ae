// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DatabaseConnectionsGauge tracks pool state (open/idle/in_use).
	DatabaseConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connections",
			Help: "Database connection pool state",
		},
		[]string{"state"},
	)

	// DepositsCredited counts ledger credits by origin path and type.
	DepositsCredited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposits_credited_total",
			Help: "Total number of deposits credited to tenant balances",
		},
		[]string{"source", "type"},
	)

	// DuplicateCredits counts crediting attempts absorbed by the tx_hash
	// uniqueness guard.
	DuplicateCredits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_credits_total",
			Help: "Crediting attempts deduplicated on tx_hash",
		},
	)

	// PendingExpired counts pending transactions forced to failed by the
	// monitor sweep.
	PendingExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pending_transactions_expired_total",
			Help: "Pending transactions expired by the monitor",
		},
	)

	// ChainProviderErrors counts upstream chain query failures.
	ChainProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chain_provider_errors_total",
			Help: "Chain query provider call failures",
		},
		[]string{"operation"},
	)
)
