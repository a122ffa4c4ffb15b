// Package metrics holds the Prometheus collectors of the project workspace.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the service records into. A nil *Metrics is
// valid and records nothing.
//
// Metrics:
//   - rvd_project_operations_total{op,result} - project operations by outcome
//   - rvd_build_duration_seconds{result} - time spent building artifacts
//   - rvd_builds_shared_total - build requests served by a build already in flight
//   - rvd_upgrade_steps_total{from,result} - single upgrade steps applied
//   - rvd_janitor_removed_total - stale workspace entries removed
//   - rvd_http_requests_total{method,route,status} - served requests
type Metrics struct {
	Operations    *prometheus.CounterVec
	BuildDuration *prometheus.HistogramVec
	BuildsShared  prometheus.Counter
	UpgradeSteps  *prometheus.CounterVec
	JanitorRemove prometheus.Counter
	Requests      *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rvd_project_operations_total",
			Help: "Project operations by kind and outcome",
		}, []string{"op", "result"}),
		BuildDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rvd_build_duration_seconds",
			Help:    "Duration of project builds in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"result"}),
		BuildsShared: f.NewCounter(prometheus.CounterOpts{
			Name: "rvd_builds_shared_total",
			Help: "Build requests that joined a build already in flight",
		}),
		UpgradeSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rvd_upgrade_steps_total",
			Help: "Single-version upgrade steps applied",
		}, []string{"from", "result"}),
		JanitorRemove: f.NewCounter(prometheus.CounterOpts{
			Name: "rvd_janitor_removed_total",
			Help: "Stale staging, trash and temp entries removed",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rvd_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Op counts one project operation.
func (m *Metrics) Op(op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result(err)).Inc()
}

// Build records a build that started at start.
func (m *Metrics) Build(start time.Time, err error) {
	if m == nil {
		return
	}
	m.BuildDuration.WithLabelValues(result(err)).Observe(time.Since(start).Seconds())
}

// BuildShared counts a build request that joined one in flight.
func (m *Metrics) BuildShared() {
	if m == nil {
		return
	}
	m.BuildsShared.Inc()
}

// UpgradeStep counts one upgrade step away from version from.
func (m *Metrics) UpgradeStep(from string, err error) {
	if m == nil {
		return
	}
	m.UpgradeSteps.WithLabelValues(from, result(err)).Inc()
}

// JanitorRemoved adds n removed workspace entries.
func (m *Metrics) JanitorRemoved(n int) {
	if m == nil {
		return
	}
	m.JanitorRemove.Add(float64(n))
}

// Request counts one served HTTP request.
func (m *Metrics) Request(method, route, status string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, route, status).Inc()
}
