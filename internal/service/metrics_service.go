package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dispatch outcomes recorded on processing_dispatch_total.
const (
	DispatchResultSuccess  = "success"
	DispatchResultRejected = "rejected"
	DispatchResultError    = "error"
	DispatchResultDropped  = "dropped"
)

// MetricsService owns the Prometheus registry of the API.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	casesCreated     prometheus.Counter
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

	dispatchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "processing_dispatch_total",
		Help: "Case submissions forwarded to the processing service by outcome",
	}, []string{"result"})

	dispatchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "processing_dispatch_duration_seconds",
		Help:    "Round trip time of processing service calls",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	casesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cases_created_total",
		Help: "Cases persisted through the creation wizard",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dispatchTotal, dispatchDuration, casesCreated, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		dispatchTotal:    dispatchTotal,
		dispatchDuration: dispatchDuration,
		casesCreated:     casesCreated,
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

// RegisterQueueDepth exposes the length of a worker queue as a gauge.
func (m *MetricsService) RegisterQueueDepth(queue string, depth func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "job_queue_depth",
		Help:        "Jobs waiting in an in-memory queue",
		ConstLabels: prometheus.Labels{"queue": queue},
	}, func() float64 {
		return float64(depth())
	}))
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

// RecordDispatch counts a processing call outcome. A zero duration is not observed.
func (m *MetricsService) RecordDispatch(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(result).Inc()
	if duration > 0 {
		m.dispatchDuration.Observe(duration.Seconds())
	}
}

// IncCasesCreated counts a persisted case.
func (m *MetricsService) IncCasesCreated() {
	if m == nil {
		return
	}
	m.casesCreated.Inc()
}
