package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/services/history"
)

// HistoryHandler serves finished-job records
type HistoryHandler struct {
	history *history.Service
	logger  arbor.ILogger
}

func NewHistoryHandler(historyService *history.Service, logger arbor.ILogger) *HistoryHandler {
	return &HistoryHandler{
		history: historyService,
		logger:  logger,
	}
}

// ListHandler handles GET /api/history?kind=&limit=. Only the caller's
// session's records are listed.
func (h *HistoryHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}

	records, err := h.history.ListForSession(r.Context(), s.ID, &interfaces.HistoryListOptions{
		Kind:  r.URL.Query().Get("kind"),
		Limit: queryLimit(r, 50, 500),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list job history")
		WriteError(w, http.StatusInternalServerError, "Failed to list job history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// GetHandler handles GET /api/history/{id}. Records of other sessions are 404.
func (h *HistoryHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	s, ok := sessionOrError(w, r)
	if !ok {
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	record, err := h.history.GetForSession(r.Context(), s.ID, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrRecordNotFound) {
			WriteError(w, http.StatusNotFound, "Job record not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", id).Msg("Failed to get job record")
		WriteError(w, http.StatusInternalServerError, "Failed to get job record")
		return
	}

	WriteJSON(w, http.StatusOK, record)
}
