// health.go — обработчики health endpoints Content Registry.
// /health — краткий статус (degraded при недоступном хранилище записей)
// /health/live — проверка liveness (процесс жив)
// /health/ready — проверка readiness (хранилище записей и внешние зависимости)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/content-registry/internal/config"
)

const serviceName = "content-registry"

// Статусы проверок.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// Name — имя зависимости в ответе readiness.
	Name() string
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	store       ReadinessChecker
	optional    []ReadinessChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
// store — проверка хранилища записей (критичная; nil — readiness вернёт "fail").
// optional — проверки необязательных зависимостей (Blob Store, Ethereum):
// их отказ переводит статус в degraded.
func NewHealthHandler(store ReadinessChecker, optional ...ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		store:       store,
		optional:    optional,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ /health и /health/live.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ проверки readiness.
type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// Health — краткий статус сервиса. Всегда 200; degraded, если хранилище записей не отвечает.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	status := statusOK
	if st, _ := h.checkStore(); st != statusOK {
		status = statusDegraded
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthLive — проверка liveness. Возвращает 200 если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — проверка readiness.
// Возвращает 200 (ok/degraded) или 503 (fail хранилища записей).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.optional)+1),
	}

	storeStatus, storeMsg := h.checkStore()
	storeName := "content_store"
	if h.store != nil {
		storeName = h.store.Name()
	}
	resp.Checks[storeName] = healthCheckResult{Status: storeStatus, Message: storeMsg}

	statuses := []string{storeStatus}
	for _, c := range h.optional {
		st, msg := c.CheckReady()
		resp.Checks[c.Name()] = healthCheckResult{Status: st, Message: msg}
		// Необязательная зависимость не переводит сервис в fail
		if st == statusFail {
			st = statusDegraded
		}
		statuses = append(statuses, st)
	}

	resp.Status = overallStatus(statuses...)

	status := http.StatusOK
	if resp.Status == statusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

func (h *HealthHandler) checkStore() (string, string) {
	if h.store == nil {
		return statusFail, "не инициализирован"
	}
	return h.store.CheckReady()
}

// overallStatus определяет итоговый статус из статусов зависимостей.
// Если хотя бы одна зависимость fail — итог fail.
// Если хотя бы одна degraded — итог degraded.
// Иначе — ok.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
