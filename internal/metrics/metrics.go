package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	importRuns   *prometheus.CounterVec
	importRows   *prometheus.CounterVec
	exportRows   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"method", "route", "result"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route"}),
		importRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "import_runs_total",
			Help:      "Import runs by entity, mode and final status.",
		}, []string{"entity", "mode", "status"}),
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "import_rows_total",
			Help:      "Imported data rows by entity, mode and result.",
		}, []string{"entity", "mode", "result"}),
		exportRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Name:      "export_rows_total",
			Help:      "Exported records by entity and file format.",
		}, []string{"entity", "format"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveImport(entity, mode, status string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.importRuns.WithLabelValues(entity, mode, status).Inc()
	m.importRows.WithLabelValues(entity, mode, "success").Add(float64(succeeded))
	m.importRows.WithLabelValues(entity, mode, "error").Add(float64(failed))
}

func (m *Metrics) ObserveExport(entity, format string, rows int) {
	if m == nil {
		return
	}
	m.exportRows.WithLabelValues(entity, format).Add(float64(rows))
}

// Middleware labels requests with the matched chi route pattern, never the
// raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, resultClass(ww.status)).Inc()
		m.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func resultClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
