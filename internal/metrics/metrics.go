// Package metrics exposes the portal's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	PermissionChecksTotal *prometheus.CounterVec
	LoginsTotal           *prometheus.CounterVec

	// Workflow metrics
	RoleRequestsTotal  *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	MaintenancePurged  *prometheus.CounterVec
}

// New creates and registers all metrics on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_permission_checks_total",
				Help: "Permission evaluations by permission and outcome (role, grant, denied, error, unknown)",
			},
			[]string{"permission", "outcome"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_logins_total",
				Help: "Login attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),

		RoleRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_role_requests_total",
				Help: "Role request transitions by requested role and resulting status",
			},
			[]string{"requested_role", "status"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_notifications_total",
				Help: "Notifications created by type and publish outcome",
			},
			[]string{"type", "publish"},
		),
		MaintenancePurged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_maintenance_purged_rows_total",
				Help: "Rows removed by maintenance tasks",
			},
			[]string{"task"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.LoginsTotal,
		m.RoleRequestsTotal,
		m.NotificationsTotal,
		m.MaintenancePurged,
	)

	return m
}

// PermissionCheck records one evaluator decision.
func (m *Metrics) PermissionCheck(permission, outcome string) {
	if m == nil {
		return
	}
	m.PermissionChecksTotal.WithLabelValues(permission, outcome).Inc()
}

// Login records one login attempt.
func (m *Metrics) Login(method, outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(method, outcome).Inc()
}

// RoleRequest records a role request entering status.
func (m *Metrics) RoleRequest(requestedRole, status string) {
	if m == nil {
		return
	}
	m.RoleRequestsTotal.WithLabelValues(requestedRole, status).Inc()
}

// Notification records a created notification and how its live delivery
// went (ok, failed, disabled).
func (m *Metrics) Notification(notificationType, publish string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(notificationType, publish).Inc()
}

// Purged records rows removed by a maintenance task.
func (m *Metrics) Purged(task string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	m.MaintenancePurged.WithLabelValues(task).Add(float64(rows))
}

// GinMiddleware records request counts and latency keyed by route template.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
