// Package telemetry provides application-level observability for the Crewbase
// provisioning backend.
//
// All metrics are registered against the default Prometheus registry and served
// on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<CRW_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router, so it stays
// off the public ingress and outside the rate-limiting middleware.
//
// HTTP metrics use c.FullPath() (route template such as
// /api/v1/onboarding/employee) rather than the raw URL to prevent unbounded
// label cardinality from user-supplied path segments.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Provisioning workflow metrics.
//
// ProvisioningAttemptsTotal is labelled {path, outcome} where path is
// "employee" or "admin" and outcome is one of success, principal_not_found,
// invalid_code, validation_failed, metadata_sync_failed, transient.
//
// Example PromQL:
//   - Redemption failure rate: rate(provisioning_attempts_total{path="employee",outcome="invalid_code"}[5m])
//   - p95 provisioning latency: histogram_quantile(0.95, sum by (path, le) (rate(provisioning_duration_seconds_bucket[5m])))
var (
	ProvisioningAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_attempts_total",
			Help: "Total provisioning attempts, by path (employee/admin) and outcome.",
		},
		[]string{"path", "outcome"},
	)

	ProvisioningDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provisioning_duration_seconds",
			Help:    "Histogram of end-to-end provisioning call latencies, by path.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"path"},
	)

	// MetadataSyncRetriesTotal counts out-of-band merge attempts by the
	// reconciler job, labelled by result (success/failure).
	MetadataSyncRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_sync_retries_total",
			Help: "Total out-of-band identity metadata merge retries, by result.",
		},
		[]string{"result"},
	)
)

// DBConnectionsOpen reports the current size of the database connection pool.
var DBConnectionsOpen = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_connections_open",
		Help: "Current number of open database connections, by state (in_use/idle).",
	},
	[]string{"state"},
)

// StartDBStatsCollector polls database/sql pool statistics every 30 seconds and
// exports them as gauges. The goroutine runs for the life of the process.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			stats := db.Stats()
			DBConnectionsOpen.WithLabelValues("in_use").Set(float64(stats.InUse))
			DBConnectionsOpen.WithLabelValues("idle").Set(float64(stats.Idle))
		}
	}()
	slog.Debug("database pool stats collector started")
}
