package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "analytics_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analytics_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	aggregationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics_layer",
			Subsystem: "aggregation",
			Name:      "runs_total",
			Help:      "Total number of aggregation computations.",
		},
		[]string{"view", "status"},
	)

	aggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analytics_layer",
			Subsystem: "aggregation",
			Name:      "run_duration_seconds",
			Help:      "Duration of aggregation computations.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"view"},
	)

	backupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics_layer",
			Subsystem: "backup",
			Name:      "runs_total",
			Help:      "Total number of snapshot operations.",
		},
		[]string{"operation", "success"},
	)

	backupPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "analytics_layer",
			Subsystem: "backup",
			Name:      "snapshots_purged_total",
			Help:      "Total number of snapshots removed by retention.",
		},
	)

	exportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analytics_layer",
			Subsystem: "export",
			Name:      "rows_written_total",
			Help:      "Total number of rows written to tabular exports.",
		},
		[]string{"dataset"},
	)

	exportLockTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "analytics_layer",
			Subsystem: "export",
			Name:      "lock_timeouts_total",
			Help:      "Total number of export writes abandoned on lock timeout.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		aggregationRuns,
		aggregationDuration,
		backupRuns,
		backupPurged,
		exportRows,
		exportLockTimeouts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordAggregation records one aggregation computation.
func RecordAggregation(view string, duration time.Duration, err error) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	aggregationRuns.WithLabelValues(view, status).Inc()
	aggregationDuration.WithLabelValues(view).Observe(duration.Seconds())
}

// RecordBackup records one snapshot operation outcome.
func RecordBackup(operation string, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	backupRuns.WithLabelValues(operation, result).Inc()
}

// RecordPurged adds to the retention purge counter.
func RecordPurged(n int) {
	if n > 0 {
		backupPurged.Add(float64(n))
	}
}

// RecordExport records rows written to one export dataset.
func RecordExport(dataset string, rows int) {
	if rows > 0 {
		exportRows.WithLabelValues(dataset).Add(float64(rows))
	}
}

// RecordExportLockTimeout counts an export abandoned on lock contention.
func RecordExportLockTimeout() {
	exportLockTimeouts.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses identifier segments so label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "analytics":
		if len(parts) == 1 {
			return "/analytics"
		}
		switch parts[1] {
		case "employee":
			if len(parts) >= 3 && parts[len(parts)-1] == "history" {
				return "/analytics/employee/:id/history"
			}
			return "/analytics/employee/:id"
		case "team":
			return "/analytics/team/:id"
		case "department":
			return "/analytics/department/:id"
		default:
			return "/analytics/" + parts[1]
		}
	case "backups", "exports":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		return "/" + parts[0] + "/" + parts[1]
	default:
		return "/" + parts[0]
	}
}
