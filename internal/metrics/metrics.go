package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the ledger. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	saleMutations   *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	lowStock        prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "riceledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "riceledger_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "riceledger_sale_mutations_total",
		Help: "Sale add, update and delete operations by outcome.",
	}, []string{"op", "result"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "riceledger_balance_reconciliations_total",
		Help: "Balance reconciliation runs by outcome.",
	}, []string{"result"})
	lowStock := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "riceledger_low_stock_warnings_total",
		Help: "Low-stock warnings returned to callers.",
	})
	registry.MustRegister(requests, duration, mutations, reconciliations, lowStock)

	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		saleMutations:   mutations,
		reconciliations: reconciliations,
		lowStock:        lowStock,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSaleMutation records op ("add", "update", "delete") with the
// outcome derived from err.
func (m *Metrics) ObserveSaleMutation(op string, err error) {
	if m == nil {
		return
	}
	m.saleMutations.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) ObserveReconciliation(err error) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) AddLowStockWarnings(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lowStock.Add(float64(n))
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
