package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the batch mutation engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	batchTotal      *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
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

	storeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_call_duration_seconds",
		Help:    "Duration of object store calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	batchTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mutation_batches_total",
		Help: "Total number of update batches sent to the store",
	}, []string{"object_type", "outcome"})

	recordsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mutation_records_total",
		Help: "Total records touched by mutation runs",
	}, []string{"object_type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, storeDuration, batchTotal, recordsTotal, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		storeDuration:   storeDuration,
		batchTotal:      batchTotal,
		recordsTotal:    recordsTotal,
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

// ObserveStoreCall records object store call timing.
func (m *MetricsService) ObserveStoreCall(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveBatch records the outcome of one update batch.
func (m *MetricsService) ObserveBatch(objectType string, size, succeeded int) {
	if m == nil {
		return
	}
	outcome := "success"
	switch {
	case succeeded == 0:
		outcome = "failed"
	case succeeded < size:
		outcome = "partial"
	}
	m.batchTotal.WithLabelValues(objectType, outcome).Inc()
	m.recordsTotal.WithLabelValues(objectType, "success").Add(float64(succeeded))
	m.recordsTotal.WithLabelValues(objectType, "failed").Add(float64(size - succeeded))
}
