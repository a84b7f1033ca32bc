// Package metrics provides Prometheus metrics for the FleetGlass backend
// (RED + sync + streaming). Scrapeable at /metrics; dashboards and alerts can
// rely on these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fleetglass"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// SyncCyclesTotal counts completed sync cycles by source kind and result.
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_cycles_total",
			Help:      "Total number of sync cycles by source kind and result.",
		},
		[]string{"kind", "result"},
	)

	// SyncCycleDurationSeconds is the full-cycle latency per source kind.
	SyncCycleDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_cycle_duration_seconds",
			Help:      "Sync cycle duration in seconds by source kind.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"kind"},
	)

	// SyncSourcesRegistered is the number of sources with an active sync loop.
	SyncSourcesRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_sources",
			Help:      "Number of sources with an active sync loop.",
		},
	)

	// StreamSubscribersActive is the current number of metrics subscribers.
	StreamSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      "Number of active metrics stream subscribers.",
		},
	)

	// StreamFramesTotal counts frames produced across all subscribers.
	StreamFramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Total number of metric frames produced.",
		},
	)

	// StreamFramesDroppedTotal counts frames dropped on slow consumers.
	StreamFramesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_dropped_total",
			Help:      "Total number of metric frames dropped because a subscriber transport was not ready.",
		},
	)

	// UsageCacheHitsTotal counts usage sweeps served from cache.
	UsageCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_cache_hits_total",
			Help:      "Total number of usage collections served from the shared cache.",
		},
	)

	// UsageCacheMissesTotal counts usage sweeps that hit the backends.
	UsageCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_cache_misses_total",
			Help:      "Total number of usage collections that swept the backends.",
		},
	)

	// LogsCacheHitsTotal counts log fetches served from cache.
	LogsCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_cache_hits_total",
			Help:      "Total number of log fetches served from the LRU cache.",
		},
	)

	// LogsCacheMissesTotal counts log fetches that hit a connector.
	LogsCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_cache_misses_total",
			Help:      "Total number of log fetches that read from a connector.",
		},
	)

	// ActionsTotal counts dispatched lifecycle actions by action and result.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of dispatched lifecycle actions by action and result.",
		},
		[]string{"action", "result"},
	)

	// ConnectorErrorsTotal counts connector failures by source kind.
	ConnectorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connector_errors_total",
			Help:      "Total number of connector failures by source kind.",
		},
		[]string{"kind"},
	)

	// EventsPrunedTotal counts event rows removed by the retention loop.
	EventsPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_pruned_total",
			Help:      "Total number of event rows removed by retention cleanup.",
		},
	)

	// DBQueryDurationSeconds is repository operation latency.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2.5, 10), // 0.5ms to ~1.9s
		},
		[]string{"operation"},
	)
)
