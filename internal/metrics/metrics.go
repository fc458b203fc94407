// Package metrics exports admission and pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/spigell/cv-evaluator/internal/evaluation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cv_evaluator"

// Recorder implements evaluation.Observer on a Prometheus registry.
type Recorder struct {
	admissions    *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	jobsActive    prometheus.Gauge
}

var _ evaluation.Observer = (*Recorder)(nil)

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Evaluation submissions by admission outcome.",
			},
			[]string{"outcome"},
		),
		jobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_finished_total",
				Help:      "Evaluation jobs that reached a terminal status.",
			},
			[]string{"status", "kind"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		jobsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_active",
				Help:      "Evaluation jobs currently being processed.",
			},
		),
	}
}

func (r *Recorder) Admitted(outcome string) {
	r.admissions.WithLabelValues(outcome).Inc()
}

func (r *Recorder) JobStarted() {
	r.jobsActive.Inc()
}

// JobFinished counts a terminal job. kind is empty for completed jobs.
func (r *Recorder) JobFinished(status evaluation.Status, kind evaluation.Kind) {
	r.jobsActive.Dec()
	r.jobsFinished.WithLabelValues(string(status), string(kind)).Inc()
}

func (r *Recorder) StageFinished(stage evaluation.Stage, elapsed time.Duration) {
	r.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
