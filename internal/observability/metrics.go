// Package observability exposes the Prometheus metrics that back up the
// spec's silent-failure contract (spec.md §7: "metrics... expose the
// otherwise-silent failures for monitoring").
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryActiveTasks tracks the number of in-flight retry tasks (C4).
	RetryActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shade_retry_active_tasks",
		Help: "Number of retry-scheduler tasks currently registered",
	})

	// RetryCancellationsTotal tracks cancellations by reason.
	RetryCancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shade_retry_cancellations_total",
		Help: "Total retry tasks cancelled, labeled by reason",
	}, []string{"reason"})

	// RetryZombiesTotal tracks the zombie sweep's findings (spec.md §4.4).
	RetryZombiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shade_retry_zombies_total",
		Help: "Tasks flagged by the zombie sweep, labeled by outcome (suspicious|killed)",
	}, []string{"outcome"})

	// LinkState tracks the Link Owner's connection state (0 unbound, 1
	// bound, 2 broken).
	LinkState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shade_link_state",
		Help: "Serial link state: 0=unbound 1=bound 2=broken",
	})

	// LinkWritesTotal tracks serial writes by outcome.
	LinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shade_link_writes_total",
		Help: "Total serial writes, labeled by outcome (ok|error)",
	}, []string{"outcome"})

	// LinkWriteDuration tracks write latency.
	LinkWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shade_link_write_duration_seconds",
		Help:    "Duration of serial write calls",
		Buckets: prometheus.DefBuckets,
	})

	// SceneExecutionsTotal tracks scene task outcomes.
	SceneExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shade_scene_executions_total",
		Help: "Total scene executions, labeled by outcome (completed|timeout|cancelled)",
	}, []string{"outcome"})

	// SceneDuration tracks scene execution wall-clock duration.
	SceneDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shade_scene_duration_seconds",
		Help:    "Duration of scene executions",
		Buckets: prometheus.DefBuckets,
	})
)
