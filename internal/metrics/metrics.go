// Package metrics provides Prometheus metrics for the workspace service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. It satisfies
// workspace.Recorder.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActivitiesTotal     *prometheus.CounterVec
	OperationsStarted   *prometheus.CounterVec
	OperationsFinished  *prometheus.CounterVec
	SuggestionsTotal    *prometheus.CounterVec
	SyncsTotal          *prometheus.CounterVec
	WorkspacesActive    prometheus.Gauge
	RetentionDeleted    *prometheus.CounterVec
	StoredWorkspaces    prometheus.Gauge
	DBSizeBytes         prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workspace_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ActivitiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_activities_total",
				Help: "Tracked activities by type and outcome.",
			},
			[]string{"type", "success"},
		),
		OperationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_ai_operations_started_total",
				Help: "AI operations started by type.",
			},
			[]string{"type"},
		),
		OperationsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_ai_operations_finished_total",
				Help: "AI operations finished by type and terminal status.",
			},
			[]string{"type", "status"},
		),
		SuggestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_suggestions_total",
				Help: "Suggestions surfaced by type.",
			},
			[]string{"type"},
		),
		SyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_syncs_total",
				Help: "Backend sync attempts by result.",
			},
			[]string{"result"},
		),
		WorkspacesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_trackers_active",
				Help: "Number of live per-user workspace trackers.",
			},
		),
		RetentionDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_retention_deleted_total",
				Help: "Rows removed by the retention job by table.",
			},
			[]string{"table"},
		),
		StoredWorkspaces: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_store_snapshots",
				Help: "Workspace snapshots held in the database.",
			},
		),
		DBSizeBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_store_size_bytes",
				Help: "Size of the SQLite database file.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActivitiesTotal,
		m.OperationsStarted,
		m.OperationsFinished,
		m.SuggestionsTotal,
		m.SyncsTotal,
		m.WorkspacesActive,
		m.RetentionDeleted,
		m.StoredWorkspaces,
		m.DBSizeBytes,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) ActivityTracked(activityType string, success bool) {
	m.ActivitiesTotal.WithLabelValues(activityType, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) OperationStarted(operationType string) {
	m.OperationsStarted.WithLabelValues(operationType).Inc()
}

func (m *Metrics) OperationFinished(operationType, status string) {
	m.OperationsFinished.WithLabelValues(operationType, status).Inc()
}

func (m *Metrics) SuggestionAdded(suggestionType string) {
	m.SuggestionsTotal.WithLabelValues(suggestionType).Inc()
}

func (m *Metrics) SyncFinished(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	m.SyncsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) WorkspacesLive(n int) {
	m.WorkspacesActive.Set(float64(n))
}

// RetentionRemoved adds n to the deleted-rows counter for table.
func (m *Metrics) RetentionRemoved(table string, n int64) {
	m.RetentionDeleted.WithLabelValues(table).Add(float64(n))
}

// StoreReported records the database summary taken after retention.
func (m *Metrics) StoreReported(snapshots int, sizeBytes int64) {
	m.StoredWorkspaces.Set(float64(snapshots))
	m.DBSizeBytes.Set(float64(sizeBytes))
}
