// Package metrics содержит prometheus-метрики движка KPI.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kpi"

var (
	// HTTPRequestTotal запросы по методу, маршруту и статусу
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "route"},
	)

	// QueryDurationSeconds длительность GetOverview / GetDomainAnalysis
	QueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Engine query duration in seconds, including feed fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "domain"},
	)

	AlertsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_emitted_total",
			Help:      "Alerts produced by the rule engine by domain and severity.",
		},
		[]string{"domain", "severity"},
	)

	// UnattributedEventsTotal события без ответственного официанта
	UnattributedEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unattributed_events_total",
			Help:      "Events no assignment interval covered at their anchor time.",
		},
	)

	// IntervalOverlapsTotal нарушения инварианта непересечения интервалов
	IntervalOverlapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interval_overlaps_total",
			Help:      "Overlapping assignment intervals detected for the same subject.",
		},
	)

	FeedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Collaborator feed failures by feed.",
		},
		[]string{"feed"},
	)

	CacheResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_cache_results_total",
			Help:      "Redis event cache lookups by result (hit, miss, error, bypass) and invalidated windows.",
		},
		[]string{"result"},
	)
)
