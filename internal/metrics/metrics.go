// Package metrics exposes Prometheus collectors for request counts and
// latency, edge weight distribution, and maintenance job run counts, plus
// the /metrics scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector the substrate exposes, registered
// against its own prometheus.Registry so tests can construct an isolated
// instance without colliding with the default global registry.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EdgeWeight      prometheus.Histogram
	JobRuns         *prometheus.CounterVec
	JobRowsAffected *prometheus.CounterVec
}

// New constructs and registers all collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyphal",
			Name:      "requests_total",
			Help:      "Total requests handled, by route and outcome code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hyphal",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency in seconds, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		EdgeWeight: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hyphal",
			Name:      "edge_weight",
			Help:      "Distribution of edge weights observed at reinforcement time.",
			Buckets:   prometheus.LinearBuckets(0, 0.15, 10),
		}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyphal",
			Name:      "maintenance_job_runs_total",
			Help:      "Maintenance job executions, by job name and outcome.",
		}, []string{"job", "outcome"}),
		JobRowsAffected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyphal",
			Name:      "maintenance_job_rows_affected_total",
			Help:      "Rows affected by maintenance jobs, by job name.",
		}, []string{"job"}),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.EdgeWeight, m.JobRuns, m.JobRowsAffected)
	return m
}

// Handler returns the /metrics scrape endpoint for this registry.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveRequestStart starts a latency timer for route; call ObserveDuration
// on the result once the request has been handled.
func (m *Registry) ObserveRequestStart(route string) *prometheus.Timer {
	return prometheus.NewTimer(m.RequestDuration.WithLabelValues(route))
}

// ObserveJobRun records one maintenance job execution.
func (m *Registry) ObserveJobRun(job string, err error, rowsAffected int64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.JobRuns.WithLabelValues(job, outcome).Inc()
	if rowsAffected > 0 {
		m.JobRowsAffected.WithLabelValues(job).Add(float64(rowsAffected))
	}
}
