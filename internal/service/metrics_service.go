package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the solver pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	solveDuration   *prometheus.HistogramVec
	solveTotal      *prometheus.CounterVec
	generatedTotal  prometheus.Counter
	repairedTotal   prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	solveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_run_duration_seconds",
		Help:    "Duration of solver runs per terminal status",
		Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 30, 60},
	}, []string{"status"})

	solveTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_runs_total",
		Help: "Total solver runs per terminal status",
	}, []string{"status"})

	generatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_assignments_generated_total",
		Help: "Total committed timetable assignments",
	})

	repairedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_assignments_invalidated_total",
		Help: "Total assignments invalidated by the repair engine",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, solveDuration, solveTotal, generatedTotal, repairedTotal, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		solveDuration:   solveDuration,
		solveTotal:      solveTotal,
		generatedTotal:  generatedTotal,
		repairedTotal:   repairedTotal,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveSolve records one solver run outcome.
func (m *MetricsService) ObserveSolve(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.solveTotal.WithLabelValues(status).Inc()
}

// AddGenerated counts freshly committed assignments.
func (m *MetricsService) AddGenerated(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.generatedTotal.Add(float64(count))
}

// AddInvalidated counts assignments soft-deleted by a repair pass.
func (m *MetricsService) AddInvalidated(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.repairedTotal.Add(float64(count))
}
