package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Worker metrics
	SweepsTotal            *prometheus.CounterVec
	SweepDuration          *prometheus.HistogramVec
	LeaseAcquisitionsTotal *prometheus.CounterVec

	// Billing metrics
	InvoicesGeneratedTotal *prometheus.CounterVec
	InvoicedAmountTotal    *prometheus.CounterVec
	CreditsDeductedTotal   *prometheus.CounterVec

	// Governance metrics
	GovernanceTransitionsTotal *prometheus.CounterVec
	OrchestrationCallsTotal    *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	// Business metrics
	PlansTotal         prometheus.Gauge
	UsersByPlan        *prometheus.GaugeVec
	UsersByState       *prometheus.GaugeVec
	InactiveUsersTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Worker metrics
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_sweeps_total",
				Help: "Total number of plan worker sweeps",
			},
			[]string{"plan", "worker", "status"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_sweep_duration_seconds",
				Help:    "Plan worker sweep duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
			},
			[]string{"plan", "worker"},
		),
		LeaseAcquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_lease_acquisitions_total",
				Help: "Total number of sweep lease attempts",
			},
			[]string{"worker", "result"},
		),

		// Billing metrics
		InvoicesGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_invoices_generated_total",
				Help: "Total number of generated invoices",
			},
			[]string{"plan", "type"},
		),
		InvoicedAmountTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_invoiced_amount_total",
				Help: "Sum of generated invoice totals",
			},
			[]string{"plan"},
		),
		CreditsDeductedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_credits_deducted_total",
				Help: "Sum of credits deducted from prepaid users",
			},
			[]string{"plan"},
		),

		// Governance metrics
		GovernanceTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_governance_transitions_total",
				Help: "Total number of user state transitions",
			},
			[]string{"from", "to"},
		),
		OrchestrationCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_orchestration_calls_total",
				Help: "Total number of orchestration service calls",
			},
			[]string{"operation", "status"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		// Business metrics
		PlansTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_plans_total",
				Help: "Number of registered finance plans",
			},
		),
		UsersByPlan: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finance_users",
				Help: "Number of subscribed users per plan",
			},
			[]string{"plan"},
		),
		UsersByState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finance_users_by_state",
				Help: "Number of subscribed users per governance state",
			},
			[]string{"state"},
		),
		InactiveUsersTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "finance_inactive_users",
				Help: "Number of users not subscribed to any plan",
			},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.SweepsTotal,
		m.SweepDuration,
		m.LeaseAcquisitionsTotal,
		m.InvoicesGeneratedTotal,
		m.InvoicedAmountTotal,
		m.CreditsDeductedTotal,
		m.GovernanceTransitionsTotal,
		m.OrchestrationCallsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.PlansTotal,
		m.UsersByPlan,
		m.UsersByState,
		m.InactiveUsersTotal,
	)

	return m
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordSweep records one worker pass over a plan partition
func (m *Metrics) RecordSweep(plan, worker string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues(plan, worker, statusLabel(err)).Inc()
	m.SweepDuration.WithLabelValues(plan, worker).Observe(duration.Seconds())
}

// RecordLease records a lease attempt before a sweep
func (m *Metrics) RecordLease(worker string, acquired bool, err error) {
	if m == nil {
		return
	}
	result := "acquired"
	switch {
	case err != nil:
		result = "error"
	case !acquired:
		result = "held"
	}
	m.LeaseAcquisitionsTotal.WithLabelValues(worker, result).Inc()
}

// RecordInvoice records a generated invoice
func (m *Metrics) RecordInvoice(plan string, final bool, total float64) {
	if m == nil {
		return
	}
	kind := "periodic"
	if final {
		kind = "final"
	}
	m.InvoicesGeneratedTotal.WithLabelValues(plan, kind).Inc()
	m.InvoicedAmountTotal.WithLabelValues(plan).Add(total)
}

// RecordCreditsDeducted records credits taken from a prepaid user
func (m *Metrics) RecordCreditsDeducted(plan string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.CreditsDeductedTotal.WithLabelValues(plan).Add(amount)
}

// RecordTransition records a governance state change
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.GovernanceTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordOrchestrationCall records a call to the orchestration service
func (m *Metrics) RecordOrchestrationCall(operation string, err error) {
	if m == nil {
		return
	}
	m.OrchestrationCallsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// UpdateDBStats copies connection pool statistics into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// pathLabel maps a request to a low cardinality route label; nil uses the
// raw URL path.
func HTTPMetricsMiddleware(metrics *Metrics, pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := pathLabel(r)
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
