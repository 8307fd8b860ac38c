// Package metrics holds the Prometheus collectors for the analysis pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deepscan_analyses_total",
		Help: "Total number of analyses, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "deepscan_stage_duration_seconds",
		Help:    "Duration of each analysis stage",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepscan_frames_sampled_total",
		Help: "Total number of frames decoded and handed to the scorer",
	})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepscan_frames_skipped_total",
		Help: "Total number of selected frames that failed to decode",
	})

	ScorerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deepscan_scorer_failures_total",
		Help: "Total number of analyses aborted by a scorer failure",
	})

	ActiveAnalyses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deepscan_active_analyses",
		Help: "Number of analyses currently in flight",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
