// Package obs содержит HTTP-метрики и метрики решений контроллера доступа.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access determinations by platform, access type and outcome.",
		},
		[]string{"platform", "access_type", "allowed"},
	)
)

// Init регистрирует метрики в default-регистре.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, accessDecisionsTotal)
}

// ObserveAccessDecision учитывает результат определения доступа.
func ObserveAccessDecision(platform, accessType string, allowed bool) {
	accessDecisionsTotal.WithLabelValues(platform, accessType, strconv.FormatBool(allowed)).Inc()
}

// Instrument оборачивает обработчик измерением RPS, задержек и запросов в полете.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpInFlight.Dec()
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
