// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trainsync"

var (
	// ImportPasses counts completed import passes by outcome ("ok", "fatal").
	ImportPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "importer",
		Name:      "passes_total",
		Help:      "Completed feed import passes by outcome.",
	}, []string{"outcome"})

	// TrainingsImported counts newly created training records.
	TrainingsImported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "importer",
		Name:      "trainings_imported_total",
		Help:      "Training records created by feed imports.",
	})

	// TrainingsUpdated counts merge-writes that changed an existing record.
	TrainingsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "importer",
		Name:      "trainings_updated_total",
		Help:      "Training records updated by feed imports.",
	})

	// TrainingsRemoved counts records deleted by retention cleanup.
	TrainingsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "importer",
		Name:      "trainings_removed_total",
		Help:      "Training records removed by retention cleanup.",
	})

	// OccurrenceErrors counts per-occurrence failures recorded during imports.
	OccurrenceErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "importer",
		Name:      "occurrence_errors_total",
		Help:      "Per-occurrence errors recorded during feed imports.",
	})

	// ImportDuration observes wall time of one import pass.
	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "importer",
		Name:      "pass_duration_seconds",
		Help:      "Duration of one feed import pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// ScheduleQueryDuration observes schedule list query latency.
	ScheduleQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "schedule",
		Name:      "query_duration_seconds",
		Help:      "Duration of schedule list queries.",
		Buckets:   prometheus.DefBuckets,
	})

	// DegradedLookups counts response lookups that failed and degraded a
	// single record to unknown status.
	DegradedLookups = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "schedule",
		Name:      "degraded_lookups_total",
		Help:      "Response lookups that failed and were degraded to unknown.",
	})
)
