// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "findash"

// ─── Store & queries ────────────────────────────────────────────────────────

var RecordWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "records",
	Name:      "writes_total",
	Help:      "Record writes by operation (create, update, delete).",
}, []string{"operation"})

var ListDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "query",
	Name:      "list_duration_seconds",
	Help:      "Latency of paginated record listings.",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
}, []string{"type"})

var StatsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "stats",
	Name:      "duration_seconds",
	Help:      "Latency of stats aggregations.",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
}, []string{"kind"})

// ─── Caches ─────────────────────────────────────────────────────────────────

var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Cache reads by cache kind and result (hit, miss).",
}, []string{"kind", "result"})

var CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "cache",
	Name:      "invalidations_total",
	Help:      "Cache invalidations by cache kind.",
}, []string{"kind"})

// ─── Backups ────────────────────────────────────────────────────────────────

var BackupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "backup",
	Name:      "runs_total",
	Help:      "Backup attempts by reason (manual, auto) and result (ok, error, skipped).",
}, []string{"reason", "result"})

var BackupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "backup",
	Name:      "duration_seconds",
	Help:      "Wall time of successful backups, upload included.",
	Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
})

var BackupBytes = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "backup",
	Name:      "last_size_bytes",
	Help:      "Size of the database file in the last successful backup.",
})

var BackupLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "backup",
	Name:      "last_success_timestamp_seconds",
	Help:      "Unix time of the last successful backup.",
})

var BackupsTrimmed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "backup",
	Name:      "trimmed_total",
	Help:      "Old blobs deleted by retention.",
})

var Restores = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "backup",
	Name:      "restores_total",
	Help:      "Restore attempts by result (ok, error).",
}, []string{"result"})

var SchedulerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "scheduler",
	Name:      "state",
	Help:      "1 for the scheduler's current state (idle, waiting, running), 0 otherwise.",
}, []string{"state"})

// ─── Events ─────────────────────────────────────────────────────────────────

var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Domain events handed to the broker by type and result.",
}, []string{"type", "result"})

// ObserveSince records the elapsed time since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// SetSchedulerState flips the state gauge so exactly one label is 1.
func SetSchedulerState(state string) {
	for _, s := range []string{"idle", "waiting", "running"} {
		v := 0.0
		if s == state {
			v = 1
		}
		SchedulerState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
