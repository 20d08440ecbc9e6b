// Package metrics exposes Prometheus instrumentation for workflows and
// recording sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkflowsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captain_workflows_started_total",
		Help: "Total number of workflow runs started",
	}, []string{"type"})

	WorkflowsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captain_workflows_finished_total",
		Help: "Total number of workflow runs by outcome",
	}, []string{"type", "outcome"})

	FramesEncodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "captain_frames_encoded_total",
		Help: "Total number of frames fed to codecs",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "captain_active_sessions",
		Help: "Number of recording sessions currently running",
	})

	HandlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captain_handler_failures_total",
		Help: "Total number of handler failures by handler",
	}, []string{"handler"})

	CaptureDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "captain_capture_duration_seconds",
		Help:    "Duration from workflow start to finish",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 15, 60, 300},
	}, []string{"type"})
)

const (
	OutcomeFinished = "finished"
	OutcomeAborted  = "aborted"
	OutcomeFailed   = "failed"
)

// RecordStart counts a workflow run of the given type
func RecordStart(kind string) {
	WorkflowsStartedTotal.WithLabelValues(label(kind)).Inc()
}

// RecordOutcome counts how a workflow run ended and how long it took
func RecordOutcome(kind, outcome string, seconds float64) {
	WorkflowsFinishedTotal.WithLabelValues(label(kind), label(outcome)).Inc()
	if outcome == OutcomeFinished {
		CaptureDurationSeconds.WithLabelValues(label(kind)).Observe(seconds)
	}
}

// IncHandlerFailure counts a failed handler
func IncHandlerFailure(handler string) {
	HandlerFailuresTotal.WithLabelValues(label(handler)).Inc()
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
