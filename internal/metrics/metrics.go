// Package metrics holds the prometheus collectors for the content core.
//
// Every recorder method is safe on a nil *Metrics, so components built
// without metrics need no special casing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zines"

// Metrics is a set of collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// BackendSelected is 1 for the backend the selector resolved to.
	// Labels: backend (relational, document)
	BackendSelected *prometheus.GaugeVec

	// PublicationsCreated counts created publications.
	PublicationsCreated prometheus.Counter

	// PagesSaved counts page saves. Labels: mode (update, append)
	PagesSaved *prometheus.CounterVec

	// VersionsEvicted counts snapshots deleted by the retention limit.
	VersionsEvicted prometheus.Counter

	// PublicationsPublished counts publish calls. Labels: status
	PublicationsPublished *prometheus.CounterVec

	// ViewsRecorded counts recorded views. Labels: first (true, false)
	ViewsRecorded *prometheus.CounterVec

	// FollowEdges counts follow graph changes. Labels: action (follow, unfollow)
	FollowEdges *prometheus.CounterVec

	// NotificationsCreated counts in-app notifications. Labels: type
	NotificationsCreated *prometheus.CounterVec

	// RepositoryErrors counts repository failures surfaced to callers.
	// Labels: kind (not_found, conflict, unavailable, other)
	RepositoryErrors *prometheus.CounterVec

	// RequestDuration measures handler latency. Labels: route, status
	RequestDuration *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BackendSelected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_selected",
			Help:      "Storage backend chosen at startup (1 = active)",
		}, []string{"backend"}),
		PublicationsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_created_total",
			Help:      "Publications created",
		}),
		PagesSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_saved_total",
			Help:      "Page saves by mode",
		}, []string{"mode"}),
		VersionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "versions_evicted_total",
			Help:      "Version snapshots removed by the retention limit",
		}),
		PublicationsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_published_total",
			Help:      "Publish calls by resulting status",
		}, []string{"status"}),
		ViewsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "views_recorded_total",
			Help:      "Views recorded, split by first view of a session",
		}, []string{"first"}),
		FollowEdges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_edges_total",
			Help:      "Follow graph changes",
		}, []string{"action"}),
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "In-app notifications created by type",
		}, []string{"type"}),
		RepositoryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_errors_total",
			Help:      "Repository errors returned to callers by kind",
		}, []string{"kind"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP handler latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) SetBackend(backend string) {
	if m == nil {
		return
	}
	m.BackendSelected.Reset()
	m.BackendSelected.WithLabelValues(backend).Set(1)
}

func (m *Metrics) PublicationCreated() {
	if m == nil {
		return
	}
	m.PublicationsCreated.Inc()
}

func (m *Metrics) PageSaved(appended bool) {
	if m == nil {
		return
	}
	mode := "update"
	if appended {
		mode = "append"
	}
	m.PagesSaved.WithLabelValues(mode).Inc()
}

func (m *Metrics) VersionEvicted() {
	if m == nil {
		return
	}
	m.VersionsEvicted.Inc()
}

func (m *Metrics) Published(status string) {
	if m == nil {
		return
	}
	m.PublicationsPublished.WithLabelValues(status).Inc()
}

func (m *Metrics) ViewRecorded(first bool) {
	if m == nil {
		return
	}
	label := "false"
	if first {
		label = "true"
	}
	m.ViewsRecorded.WithLabelValues(label).Inc()
}

func (m *Metrics) FollowChanged(action string) {
	if m == nil {
		return
	}
	m.FollowEdges.WithLabelValues(action).Inc()
}

func (m *Metrics) NotificationCreated(kind string) {
	if m == nil {
		return
	}
	m.NotificationsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) RepositoryError(kind string) {
	if m == nil {
		return
	}
	m.RepositoryErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRequest(route, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, status).Observe(took.Seconds())
}
