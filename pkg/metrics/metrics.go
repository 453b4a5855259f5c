// Package metrics exports flow engine metrics to Prometheus.
//
// PrometheusObserver implements api.Observer, so it can be attached to any
// engine (optionally combined with other observers via
// api.NewCompositeObserver) and scraped through promhttp.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hboehmer-IW/prefect/pkg/api"
)

// PrometheusObserver counts runs and attempts per flow.
type PrometheusObserver struct {
	runsStarted     *prometheus.CounterVec
	runsFinished    *prometheus.CounterVec
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	activeRuns      *prometheus.GaugeVec
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates a PrometheusObserver and registers its
// collectors with reg. If reg is nil, the default registerer is used.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefect_flow_runs_started_total",
				Help: "Total flow runs started",
			},
			[]string{"flow"},
		),
		runsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefect_flow_runs_finished_total",
				Help: "Total flow runs finished, by terminal state",
			},
			[]string{"flow", "state"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prefect_flow_attempts_total",
				Help: "Total flow function invocations, by outcome",
			},
			[]string{"flow", "outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prefect_flow_attempt_duration_seconds",
				Help:    "Duration of individual flow function invocations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		activeRuns: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "prefect_flow_active_runs",
				Help: "Flow runs currently executing",
			},
			[]string{"flow"},
		),
	}

	reg.MustRegister(o.runsStarted, o.runsFinished, o.attemptsTotal, o.attemptDuration, o.activeRuns)
	return o
}

func (o *PrometheusObserver) OnRunStart(ctx context.Context, run *api.FlowRun) {
	o.runsStarted.WithLabelValues(run.FlowName).Inc()
	o.activeRuns.WithLabelValues(run.FlowName).Inc()
}

func (o *PrometheusObserver) OnRunCompleted(ctx context.Context, run *api.FlowRun) {
	o.runsFinished.WithLabelValues(run.FlowName, string(run.StateType)).Inc()
	o.activeRuns.WithLabelValues(run.FlowName).Dec()
}

func (o *PrometheusObserver) OnRunFailed(ctx context.Context, run *api.FlowRun, err error) {
	o.runsFinished.WithLabelValues(run.FlowName, string(run.StateType)).Inc()
	// A run cancelled before its first attempt was never counted as active.
	if run.StateType != api.StateCancelled || run.RunCount > 0 {
		o.activeRuns.WithLabelValues(run.FlowName).Dec()
	}
}

func (o *PrometheusObserver) OnAttemptStart(ctx context.Context, run *api.FlowRun, attempt int) {
}

func (o *PrometheusObserver) OnAttemptCompleted(ctx context.Context, run *api.FlowRun, attempt int, err error, d time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.attemptsTotal.WithLabelValues(run.FlowName, outcome).Inc()
	o.attemptDuration.WithLabelValues(run.FlowName).Observe(d.Seconds())
}
