// Package metrics exposes the worker's Prometheus instrumentation.
//
// A Recorder owns a private registry so that several workers (or tests) can
// live in one process. All Recorder methods are safe to call on a nil
// receiver, which disables instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes of a single computation.
const (
	OutcomeResolved  = "resolved"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Results of a single host command.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultIgnored  = "ignored"
)

// Recorder collects resolver metrics.
type Recorder struct {
	registry *prometheus.Registry

	computationsTotal *prometheus.CounterVec   // computations by resolver type and outcome
	computeSeconds    *prometheus.HistogramVec // wall time of computations
	cyclesTotal       *prometheus.CounterVec   // nodes failed because of a dependency cycle
	commandsTotal     *prometheus.CounterVec   // host commands by type and result
	activeResolvers   prometheus.Gauge         // live resolver instances
	processStartTime  prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.computationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveresolver_computations_total",
			Help: "Number of node computations that have finished.",
		},
		// resolver_type: compute function the instance was created with
		// outcome: resolved, failed or cancelled
		[]string{"resolver_type", "outcome"},
	)
	r.computeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liveresolver_compute_duration_seconds",
			Help:    "Duration of node computations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resolver_type"},
	)
	r.cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveresolver_cycle_failures_total",
			Help: "Number of nodes failed because they are part of a dependency cycle.",
		},
		[]string{"resolver_type"},
	)
	r.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liveresolver_commands_total",
			Help: "Number of host commands received.",
		},
		[]string{"command", "result"},
	)
	r.activeResolvers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "liveresolver_active_resolvers",
			Help: "Number of resolver instances currently alive.",
		},
	)
	r.processStartTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "liveresolver_process_start_time_seconds",
			Help: "Start time of the process since unix epoch in seconds.",
		},
	)

	r.registry.MustRegister(
		r.computationsTotal,
		r.computeSeconds,
		r.cyclesTotal,
		r.commandsTotal,
		r.activeResolvers,
		r.processStartTime,
	)
	r.processStartTime.SetToCurrentTime()
	return r
}

// Gatherer returns the registry backing the recorder.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// ObserveComputation records one finished computation.
func (r *Recorder) ObserveComputation(resolverType, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.computationsTotal.With(prometheus.Labels{"resolver_type": resolverType, "outcome": outcome}).Inc()
	r.computeSeconds.WithLabelValues(resolverType).Observe(d.Seconds())
}

// CycleFailures records n nodes failed with a cycle error.
func (r *Recorder) CycleFailures(resolverType string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.cyclesTotal.WithLabelValues(resolverType).Add(float64(n))
}

// Command records one host command and what became of it.
func (r *Recorder) Command(command, result string) {
	if r == nil {
		return
	}
	r.commandsTotal.With(prometheus.Labels{"command": command, "result": result}).Inc()
}

// ResolverCreated increments the live instance gauge.
func (r *Recorder) ResolverCreated() {
	if r == nil {
		return
	}
	r.activeResolvers.Inc()
}

// ResolverDisposed decrements the live instance gauge.
func (r *Recorder) ResolverDisposed() {
	if r == nil {
		return
	}
	r.activeResolvers.Dec()
}
