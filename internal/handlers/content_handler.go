package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// ContentHandler lists what is under the content root
type ContentHandler struct {
	catalog interfaces.ContentCatalog
	logger  arbor.ILogger
}

func NewContentHandler(catalog interfaces.ContentCatalog, logger arbor.ILogger) *ContentHandler {
	return &ContentHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// ListHandler handles GET /api/content: module names (export-module,
// delete-module targets) and project ids (publish-project)
func (h *ContentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	modules, err := h.catalog.ModuleNames()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list modules")
		WriteError(w, http.StatusInternalServerError, "Failed to list modules")
		return
	}
	projects, err := h.catalog.ProjectIDs()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list projects")
		WriteError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"modules":  modules,
		"projects": projects,
	})
}
