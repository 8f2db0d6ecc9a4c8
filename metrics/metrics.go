package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadmanager"

// Metrics holds all Prometheus metrics. Every Record method is safe on a nil
// *Metrics, so callers that run without metrics can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	LeadsCreated     prometheus.Counter
	LeadsRejected    *prometheus.CounterVec
	StatusUpdates    *prometheus.CounterVec
	ExportsCreated   *prometheus.CounterVec
	LeadsErasedTotal prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LeadsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_created_total",
			Help:      "Total number of leads created",
		}),
		LeadsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leads_rejected_total",
				Help:      "Total number of rejected lead creations",
			},
			[]string{"reason"}, // validation, duplicate, error
		),
		StatusUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lead_status_updates_total",
				Help:      "Total number of lead status updates",
			},
			[]string{"status"},
		),
		ExportsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_created_total",
				Help:      "Total number of exports created",
			},
			[]string{"format"},
		),
		LeadsErasedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_erased_total",
			Help:      "Total number of leads removed by erase",
		}),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation", "outcome"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency per route template, so
// /api/v1/exports/{token}/erase is one series however many tokens are used.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RecordLeadCreated increments the leads created counter
func (m *Metrics) RecordLeadCreated() {
	if m == nil {
		return
	}
	m.LeadsCreated.Inc()
}

// RecordLeadRejected increments the rejected creations counter
func (m *Metrics) RecordLeadRejected(reason string) {
	if m == nil {
		return
	}
	m.LeadsRejected.WithLabelValues(reason).Inc()
}

// RecordStatusUpdate increments the status updates counter for the new status
func (m *Metrics) RecordStatusUpdate(status string) {
	if m == nil {
		return
	}
	m.StatusUpdates.WithLabelValues(status).Inc()
}

// ExportCreated increments the exports counter; it satisfies export.Recorder.
func (m *Metrics) ExportCreated(format string) {
	if m == nil {
		return
	}
	m.ExportsCreated.WithLabelValues(format).Inc()
}

// LeadsErased adds n to the erased leads counter; it satisfies export.Recorder.
func (m *Metrics) LeadsErased(n int64) {
	if m == nil {
		return
	}
	m.LeadsErasedTotal.Add(float64(n))
}

// RecordQuery observes one SQL statement; it satisfies db.MetricsCollector.
func (m *Metrics) RecordQuery(query string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.DBQueryDuration.WithLabelValues(Operation(query), outcome).Observe(duration.Seconds())
}

// Operation returns the lower-cased leading keyword of a statement
// ("select", "insert", ...), which keeps the label set small.
func Operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "unknown"
	}
	switch op := strings.ToLower(fields[0]); op {
	case "select", "insert", "update", "delete", "create":
		return op
	default:
		return "other"
	}
}
