// metrics.go — Prometheus HTTP метрики Content Registry.
// Регистрирует метрики: cr_http_requests_total, cr_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cr_http_requests_total",
			Help: "Общее количество HTTP-запросов к Content Registry",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cr_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Content Registry в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newStatusWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет content address в пути на {contentAddress}.
// /media/9f86d0...  → /media/{contentAddress}
// /media/9f86d0.../history → /media/{contentAddress}/history
// Неизвестные пути сводятся к "other".
func normalizePath(path string) string {
	switch path {
	case "/health", "/health/live", "/health/ready", "/metrics", "/openapi.yaml",
		"/media", "/media/upload", "/media/verify", "/activity", "/stats":
		return path
	}

	const mediaPrefix = "/media/"
	if !strings.HasPrefix(path, mediaPrefix) {
		return "other"
	}

	rest := path[len(mediaPrefix):]
	addr, suffix, _ := strings.Cut(rest, "/")
	if addr == "" {
		return "other"
	}

	switch suffix {
	case "":
		return "/media/{contentAddress}"
	case "history", "download", "transfer":
		return "/media/{contentAddress}/" + suffix
	default:
		return "other"
	}
}
