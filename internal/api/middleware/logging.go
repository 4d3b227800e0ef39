// logging.go — журнал HTTP-запросов Content Registry.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusWriter запоминает статус и размер ответа. Общий для журнала и метрик.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.written += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (flush при отдаче содержимого).
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// RequestLogger пишет по строке на запрос. Маршрут берётся нормализованным,
// адрес содержимого выносится в отдельное поле.
// Служебные эндпоинты (/health/*, /metrics) пишутся на DEBUG, остальные —
// INFO, WARN для 4xx и ERROR для 5xx.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := chimw.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set("X-Request-Id", reqID)
			}
			wrapped := newStatusWriter(w)

			next.ServeHTTP(wrapped, r)

			route := normalizePath(r.URL.Path)
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if addr := addressFromPath(r.URL.Path); addr != "" {
				attrs = append(attrs, slog.String("content_address", addr))
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("request_bytes", r.ContentLength))
			}

			logger.LogAttrs(r.Context(), requestLevel(route, wrapped.statusCode), "HTTP запрос", attrs...)
		})
	}
}

func requestLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case route == "/metrics" || strings.HasPrefix(route, "/health"):
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// addressFromPath возвращает content address из /media/{addr}[/...].
// Для фиксированных маршрутов /media/* — пустая строка.
func addressFromPath(path string) string {
	route := normalizePath(path)
	if !strings.HasPrefix(route, "/media/{contentAddress}") {
		return ""
	}
	addr, _, _ := strings.Cut(strings.TrimPrefix(path, "/media/"), "/")
	return addr
}
