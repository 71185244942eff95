package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kalambet/claritydesk/internal/records"
)

var (
	metricSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claritydesk",
		Name:      "submissions_total",
		Help:      "Submissions by variant and resulting record status.",
	}, []string{"variant", "status"})
	metricSyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claritydesk",
		Name:      "sync_runs_total",
		Help:      "Queue sync runs by outcome (skipped, completed, interrupted).",
	}, []string{"outcome"})
	metricSyncedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "claritydesk",
		Name:      "synced_records_total",
		Help:      "Pending records resolved by sync, by variant and resulting status.",
	}, []string{"variant", "status"})
	metricGenerationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "claritydesk",
		Name:      "generation_duration_seconds",
		Help:      "Latency of generation service calls.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
	}, []string{"variant"})
	metricStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "claritydesk",
		Name:      "status",
		Help:      "1 for the current global status, 0 otherwise.",
	}, []string{"status"})
)

func recordSubmission(v records.Variant, s records.Status) {
	metricSubmissions.WithLabelValues(string(v), string(s)).Inc()
}

func recordSyncRun(outcome string) {
	metricSyncRuns.WithLabelValues(outcome).Inc()
}

func recordSynced(v records.Variant, s records.Status) {
	metricSyncedRecords.WithLabelValues(string(v), string(s)).Inc()
}

func observeGeneration(v records.Variant, seconds float64) {
	metricGenerationSeconds.WithLabelValues(string(v)).Observe(seconds)
}

func recordStatus(current Status) {
	for _, s := range []Status{StatusIdle, StatusLoading, StatusError} {
		val := 0.0
		if s == current {
			val = 1
		}
		metricStatus.WithLabelValues(string(s)).Set(val)
	}
}
