package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collector
	CollectorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbon_collector_runs_total",
			Help: "Collector runs by outcome and data source",
		},
		[]string{"status", "source"}, // status: success|error, source: api|synthetic|none
	)

	CollectorRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carbon_collector_run_duration_seconds",
			Help:    "Duration of collector runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CollectorRetriesScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carbon_collector_retries_scheduled_total",
			Help: "Retries scheduled after a failed collection",
		},
	)

	CollectorConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carbon_collector_consecutive_failures",
			Help: "Consecutive failed collections since the last success",
		},
	)

	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbon_readings_upserts_total",
			Help: "Natural-key upserts by dataset and action",
		},
		[]string{"dataset", "action"},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbon_reports_generated_total",
			Help: "Reports generated by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	// Realtime
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "carbon_realtime_connections",
			Help: "Open realtime stream connections",
		},
	)

	RealtimeFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbon_realtime_frames_sent_total",
			Help: "Frames written to realtime clients by message type",
		},
		[]string{"type"},
	)

	RealtimeFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbon_realtime_frames_dropped_total",
			Help: "Undelivered frames replaced by a newer message of the same type",
		},
		[]string{"type"},
	)

	RealtimeTicksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbon_realtime_ticks_skipped_total",
			Help: "Snapshot ticks skipped because the previous query was still running",
		},
		[]string{"type"},
	)

	// MQTT ingest
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbon_ingest_messages_total",
			Help: "MQTT reading messages by outcome",
		},
		[]string{"status"},
	)
)

// ObserveCollectorRun records a collector run.
func ObserveCollectorRun(status, source string, started time.Time) {
	CollectorRuns.WithLabelValues(status, source).Inc()
	CollectorRunDuration.Observe(time.Since(started).Seconds())
}
