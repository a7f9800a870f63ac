// Package metrics records pipeline, resolver and installer outcomes with
// Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements the resolver and pipeline observer interfaces.
type Recorder struct {
	registry *prometheus.Registry

	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	runsTotal          *prometheus.CounterVec
	runDuration        *prometheus.HistogramVec
	stagesTotal        *prometheus.CounterVec
	installsTotal      *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pefmt_resolutions_total",
				Help: "Tool resolutions by tool, outcome and whether the cache answered",
			},
			[]string{"tool", "outcome", "cached"},
		),
		resolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pefmt_resolution_duration_seconds",
				Help:    "Duration of uncached tool resolutions",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"tool"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pefmt_pipeline_runs_total",
				Help: "Formatting pipeline runs by mode and final status",
			},
			[]string{"mode", "status"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pefmt_pipeline_duration_seconds",
				Help:    "Duration of formatting pipeline runs",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		stagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pefmt_pipeline_stages_total",
				Help: "Pipeline stage outcomes by tool",
			},
			[]string{"tool", "outcome"},
		),
		installsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pefmt_daemon_installs_total",
				Help: "Daemon install attempts by tool and result",
			},
			[]string{"tool", "result"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the collected metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveResolution records one resolver lookup.
func (r *Recorder) ObserveResolution(tool, outcome string, cached bool, d time.Duration) {
	r.resolutionsTotal.WithLabelValues(tool, outcome, strconv.FormatBool(cached)).Inc()
	if !cached {
		r.resolutionDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

// ObserveRun records a finished pipeline run.
func (r *Recorder) ObserveRun(mode, status string, d time.Duration) {
	r.runsTotal.WithLabelValues(mode, status).Inc()
	r.runDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveStage records the outcome of one tool invocation.
func (r *Recorder) ObserveStage(tool, outcome string) {
	r.stagesTotal.WithLabelValues(tool, outcome).Inc()
}

// ObserveInstall records a daemon install attempt.
func (r *Recorder) ObserveInstall(tool string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.installsTotal.WithLabelValues(tool, result).Inc()
}
