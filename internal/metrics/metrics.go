// Package metrics provides Prometheus collectors for the dashboard server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "envdash"

var (
	// HTTPRequestsTotal counts requests by method, route, status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds is request latency by route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2.5, 10),
		},
		[]string{"method", "route"},
	)

	// IngestTotal counts ingest attempts by transport and result (stored, invalid, store_error, rate_limited).
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Total number of ingest attempts by transport and result.",
		},
		[]string{"transport", "result"},
	)

	// QueriesTotal counts range queries by sampling strategy.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of range queries by sampling strategy.",
		},
		[]string{"strategy"},
	)

	// FallbacksTotal counts sampled results replaced by the last N raw readings.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_substitutions_total",
			Help:      "Total number of sampled results replaced by the most recent raw readings.",
		},
		[]string{"strategy"},
	)

	// RawSeriesSize observes how many raw readings a query scanned.
	RawSeriesSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "raw_series_size",
			Help:      "Number of raw readings fetched per range query.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// QueryCacheHitsTotal counts sampled results served from cache.
	QueryCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_hits_total",
			Help:      "Total number of query cache hits.",
		},
	)

	// QueryCacheMissesTotal counts sampled results computed from the store.
	QueryCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_misses_total",
			Help:      "Total number of query cache misses.",
		},
	)

	// StreamConnectionsActive is the number of connected sensor agents.
	StreamConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connections_active",
			Help:      "Number of active sensor stream connections.",
		},
	)
)
