package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/club-dues/dues"
)

// Job names used as metric labels.
const (
	JobGenerate  = "generate"
	JobOverdue   = "overdue"
	JobReminders = "reminders"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Job metrics
	JobRunsTotal    *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	ItemErrorsTotal *prometheus.CounterVec

	// Business metrics
	ChargesCreatedTotal prometheus.Counter
	ChargesSkippedTotal prometheus.Counter
	ChargesOverdueTotal prometheus.Counter
	RemindersTotal      *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dues_job_runs_total",
				Help: "Total number of dues job runs",
			},
			[]string{"job", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dues_job_duration_seconds",
				Help:    "Dues job duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		ItemErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dues_item_errors_total",
				Help: "Per-club and per-charge errors counted by dues jobs",
			},
			[]string{"job"},
		),
		ChargesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dues_charges_created_total",
				Help: "Total number of charges created",
			},
		),
		ChargesSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dues_charges_skipped_total",
				Help: "Total number of members skipped (already charged or exempt)",
			},
		),
		ChargesOverdueTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dues_charges_overdue_total",
				Help: "Total number of charges moved to overdue",
			},
		),
		RemindersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dues_reminders_total",
				Help: "Due-soon reminders by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dues_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dues_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		registry: registry,
	}

	// Register all metrics
	registry.MustRegister(
		m.JobRunsTotal,
		m.JobDuration,
		m.ItemErrorsTotal,
		m.ChargesCreatedTotal,
		m.ChargesSkippedTotal,
		m.ChargesOverdueTotal,
		m.RemindersTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRun(job string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, outcome).Inc()
	m.JobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// RecordGenerate records one generation run.
func (m *Metrics) RecordGenerate(res dues.RunResult, elapsed time.Duration, err error) {
	m.observeRun(JobGenerate, elapsed, err)
	m.ChargesCreatedTotal.Add(float64(res.Created))
	m.ChargesSkippedTotal.Add(float64(res.Skipped))
	m.ItemErrorsTotal.WithLabelValues(JobGenerate).Add(float64(res.Errors))
}

// RecordOverdue records one overdue sweep.
func (m *Metrics) RecordOverdue(res dues.SweepResult, elapsed time.Duration, err error) {
	m.observeRun(JobOverdue, elapsed, err)
	m.ChargesOverdueTotal.Add(float64(res.Transitioned))
	m.ItemErrorsTotal.WithLabelValues(JobOverdue).Add(float64(res.Errors))
}

// RecordReminders records one reminder sweep.
func (m *Metrics) RecordReminders(res dues.ReminderResult, elapsed time.Duration, err error) {
	m.observeRun(JobReminders, elapsed, err)
	m.RemindersTotal.WithLabelValues("sent").Add(float64(res.Sent))
	m.RemindersTotal.WithLabelValues("no_token").Add(float64(res.NoToken))
	m.RemindersTotal.WithLabelValues("failed").Add(float64(res.Failed))
	m.ItemErrorsTotal.WithLabelValues(JobReminders).Add(float64(res.Errors))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. The route label is the
// chi route pattern so IDs don't explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}
