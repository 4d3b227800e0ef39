package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bigkaa/goartstore/content-registry/internal/api/openapi"
)

const testAddress = "a948904f2f0f479b8f8197694b30184b0d2ed1c1cd2a1ec0fb85d299a192a447"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestNormalizePath проверяет нормализацию путей для лейблов метрик.
func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/media", "/media"},
		{"/media/upload", "/media/upload"},
		{"/media/verify", "/media/verify"},
		{"/activity", "/activity"},
		{"/stats", "/stats"},
		{"/media/" + testAddress, "/media/{contentAddress}"},
		{"/media/" + testAddress + "/history", "/media/{contentAddress}/history"},
		{"/media/" + testAddress + "/download", "/media/{contentAddress}/download"},
		{"/media/" + testAddress + "/transfer", "/media/{contentAddress}/transfer"},
		{"/media/" + testAddress + "/unknown", "other"},
		{"/media/", "other"},
		{"/random/path", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestRequestLogger проверяет уровень логирования по статус-коду.
func TestRequestLogger(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusServiceUnavailable, "level=ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("body"))
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

		out := buf.String()
		if !strings.Contains(out, tt.wantLevel) {
			t.Errorf("статус %d: ожидался %s, лог: %s", tt.status, tt.wantLevel, out)
		}
		if !strings.Contains(out, "bytes=4") {
			t.Errorf("статус %d: ожидался размер ответа 4, лог: %s", tt.status, out)
		}
	}
}

// TestRequestLogger_Fields проверяет поля записи о запросе к содержимому.
func TestRequestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/"+testAddress+"/history", nil))

	out := buf.String()
	for _, want := range []string{
		"component=http",
		"route=/media/{contentAddress}/history",
		"content_address=" + testAddress,
		"request_id=",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ожидалось поле %s, лог: %s", want, out)
		}
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("ожидался заголовок X-Request-Id")
	}
}

// TestRequestLogger_ServiceEndpoints проверяет, что /health и /metrics пишутся на DEBUG.
func TestRequestLogger_ServiceEndpoints(t *testing.T) {
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))

		if buf.Len() != 0 {
			t.Errorf("%s: ожидалось отсутствие записи на уровне INFO, лог: %s", path, buf.String())
		}
	}
}

// TestAddressFromPath проверяет извлечение адреса содержимого из пути.
func TestAddressFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/media/" + testAddress, testAddress},
		{"/media/" + testAddress + "/download", testAddress},
		{"/media/upload", ""},
		{"/media/" + testAddress + "/unknown", ""},
		{"/stats", ""},
	}
	for _, tt := range tests {
		if got := addressFromPath(tt.path); got != tt.want {
			t.Errorf("addressFromPath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
		}
	}
}

// TestMetricsMiddleware проверяет, что статус ответа не теряется.
func TestMetricsMiddleware(t *testing.T) {
	handler := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/"+testAddress, nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("ожидался статус 418, получен %d", rec.Code)
	}
}

// TestRecoverer проверяет преобразование паники в 500 INTERNAL_ERROR.
func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("сломалось")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ожидался статус 500, получен %d", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if body.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("ожидался code=INTERNAL_ERROR, получен %s", body.Error.Code)
	}
	if !strings.Contains(buf.String(), "сломалось") {
		t.Errorf("ожидалось значение паники в логе: %s", buf.String())
	}
}

// TestRequestValidator проверяет валидацию path и query параметров.
func TestRequestValidator(t *testing.T) {
	doc, err := openapi.Load()
	if err != nil {
		t.Fatalf("openapi.Load() ошибка: %v", err)
	}
	v, err := NewRequestValidator(doc, discardLogger())
	if err != nil {
		t.Fatalf("NewRequestValidator() ошибка: %v", err)
	}

	handler := v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"валидный адрес", http.MethodGet, "/media/" + testAddress, http.StatusOK},
		{"адрес в верхнем регистре", http.MethodGet, "/media/" + strings.ToUpper(testAddress), http.StatusOK},
		{"короткий адрес", http.MethodGet, "/media/abc", http.StatusBadRequest},
		{"не hex адрес", http.MethodGet, "/media/" + strings.Repeat("z", 64) + "/history", http.StatusBadRequest},
		{"валидная пагинация", http.MethodGet, "/media?page=2&limit=10", http.StatusOK},
		{"limit больше максимума", http.MethodGet, "/media?limit=500", http.StatusOK},
		{"нечисловой page", http.MethodGet, "/media?page=abc", http.StatusBadRequest},
		{"нулевой limit", http.MethodGet, "/activity?limit=0", http.StatusBadRequest},
		{"путь вне контракта", http.MethodGet, "/metrics", http.StatusOK},
		{"загрузка без проверки тела", http.MethodPost, "/media/upload", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("ожидался статус %d, получен %d, тело: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}
