// Package observer defines metrics hooks for grading runs.
package observer

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder records grading metrics. Language labels are names from the
// executor's language table, never raw request values.
type MetricsRecorder interface {
	ObserveRun(ctx context.Context, mode string, outcome string, elapsed time.Duration)
	ObserveExecution(ctx context.Context, language string, status string, timeMs int64)
	ObserveLanguageFallback(ctx context.Context, fallback string)
	JobStarted(ctx context.Context)
	JobFinished(ctx context.Context)
}

// Nop discards all observations.
type Nop struct{}

func (Nop) ObserveRun(context.Context, string, string, time.Duration) {}
func (Nop) ObserveExecution(context.Context, string, string, int64)   {}
func (Nop) ObserveLanguageFallback(context.Context, string)           {}
func (Nop) JobStarted(context.Context)                                {}
func (Nop) JobFinished(context.Context)                               {}

// Prometheus exports observations as prometheus collectors.
type Prometheus struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	executions  *prometheus.CounterVec
	execTime    *prometheus.HistogramVec
	fallbacks   *prometheus.CounterVec
	inflight    prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autograde",
			Name:      "grading_runs_total",
			Help:      "Grading runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autograde",
			Name:      "grading_duration_seconds",
			Help:      "Wall-clock duration of grading runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"mode"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autograde",
			Name:      "executions_total",
			Help:      "Execution service calls by reported status.",
		}, []string{"status"}),
		execTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autograde",
			Name:      "execution_time_ms",
			Help:      "Program run time reported by the execution service.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"language"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autograde",
			Name:      "language_fallbacks_total",
			Help:      "Submissions executed with the default language because theirs was unknown.",
		}, []string{"fallback"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autograde",
			Name:      "jobs_inflight",
			Help:      "Grading jobs currently being processed.",
		}),
	}
	for _, c := range []prometheus.Collector{p.runs, p.runDuration, p.executions, p.execTime, p.fallbacks, p.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveRun(_ context.Context, mode string, outcome string, elapsed time.Duration) {
	p.runs.WithLabelValues(mode, outcome).Inc()
	p.runDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveExecution(_ context.Context, language string, status string, timeMs int64) {
	if status == "" {
		status = "transport_error"
	}
	p.executions.WithLabelValues(status).Inc()
	if timeMs > 0 {
		p.execTime.WithLabelValues(language).Observe(float64(timeMs))
	}
}

func (p *Prometheus) ObserveLanguageFallback(_ context.Context, fallback string) {
	p.fallbacks.WithLabelValues(fallback).Inc()
}

func (p *Prometheus) JobStarted(context.Context)  { p.inflight.Inc() }
func (p *Prometheus) JobFinished(context.Context) { p.inflight.Dec() }
