// history.go — обработчики истории записи, ленты активности и статистики.
package handlers

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/goartstore/content-registry/internal/api/errors"
)

// GetMediaHistory — GET /media/{contentAddress}/history.
func (h *APIHandler) GetMediaHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.svc.History.HistoryFor(r.Context(), contentAddressParam(r))
	if err != nil {
		h.writeServiceError(w, "Ошибка получения истории", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordHistoryResponse(history))
}

// GetActivity — GET /activity?limit=N.
func (h *APIHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр limit")
		return
	}

	events, err := h.svc.History.ActivityFeed(r.Context(), derefInt(limit))
	if err != nil {
		h.writeServiceError(w, "Ошибка получения ленты активности", err)
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{Items: toHistoryEvents(events)})
}

// GetStats — GET /stats.
func (h *APIHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.History.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, "Ошибка получения статистики", err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalContent:       st.TotalContent,
		TotalVerifications: st.TotalVerifications,
		TotalTransfers:     st.TotalTransfers,
		TotalDownloads:     st.TotalDownloads,
		TotalActivities:    st.TotalActivities,
	})
}
