// handler.go — основной обработчик API Content Registry.
// Регистрирует маршруты в chi и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/content-registry/internal/api/errors"
	"github.com/bigkaa/goartstore/content-registry/internal/api/openapi"
	"github.com/bigkaa/goartstore/content-registry/internal/service"
)

// Services — сервисы, которые использует API.
type Services struct {
	Registration *service.RegistrationService
	Verification *service.VerificationService
	Records      *service.RecordsService
	History      *service.HistoryService
	Ownership    *service.OwnershipService
	Download     *service.DownloadService
}

// APIHandler — основной обработчик API Content Registry.
type APIHandler struct {
	svc           Services
	health        *HealthHandler
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxUploadSize — лимит размера загружаемого файла в байтах.
func NewAPIHandler(svc Services, health *HealthHandler, maxUploadSize int64, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		svc:           svc,
		health:        health,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// Mount регистрирует маршруты API в роутере.
// requireAuth оборачивает изменяющие операции (nil — аутентификация не требуется).
func (h *APIHandler) Mount(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Get("/health", h.health.Health)
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)
	r.Get("/openapi.yaml", h.GetOpenAPISpec)

	r.Get("/media", h.ListMedia)
	r.Post("/media/verify", h.VerifyMedia)
	r.Get("/media/{contentAddress}", h.GetMedia)
	r.Get("/media/{contentAddress}/history", h.GetMediaHistory)
	r.Get("/media/{contentAddress}/download", h.DownloadMedia)
	r.Get("/activity", h.GetActivity)
	r.Get("/stats", h.GetStats)

	// Изменяющие операции
	r.Group(func(r chi.Router) {
		if requireAuth != nil {
			r.Use(requireAuth)
		}
		r.Post("/media/upload", h.UploadMedia)
		r.Post("/media/{contentAddress}/transfer", h.TransferMedia)
	})
}

// GetOpenAPISpec отдаёт встроенный OpenAPI контракт.
func (h *APIHandler) GetOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec)
}

// writeServiceError отображает ошибки сервисного слоя в HTTP-ответы.
// op — описание операции для лога.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Запись не найдена")
	case errors.Is(err, service.ErrOwnershipConflict):
		apierrors.OwnershipConflict(w, "Текущий владелец не совпадает с from")
	case errors.Is(err, service.ErrBlobUnavailable):
		apierrors.ContentNotAvailable(w, "Содержимое не сохранено в blob-хранилище")
	case errors.Is(err, service.ErrBlobStoreUnavailable):
		h.logger.Error(op, slog.String("error", err.Error()))
		apierrors.BlobStoreUnavailable(w, "Blob-хранилище недоступно")
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Error(op, slog.String("error", err.Error()))
		apierrors.StorageUnavailable(w, "Хранилище записей недоступно")
	case errors.Is(err, context.Canceled):
		h.logger.Debug(op+": запрос отменён клиентом")
	default:
		h.logger.Error(op, slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// requesterContext — IP клиента (RemoteAddr после chi RealIP).
func requesterContext(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
