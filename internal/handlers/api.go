package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/common"
)

// APIHandler serves the ambient, domain-agnostic endpoints (version, health,
// 404 fallback) that sit alongside the scrape/map/crawl handlers.
type APIHandler struct {
	logger arbor.ILogger
	cfg    *common.Config
}

func NewAPIHandler(cfg *common.Config) *APIHandler {
	return &APIHandler{
		logger: common.GetLogger(),
		cfg:    cfg,
	}
}

// VersionHandler returns version information.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version":   common.GetVersion(),
		"buildTime": common.BuildTime,
		"gitCommit": common.GitCommit,
	})
}

// HealthHandler returns health check status.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IsProductionHandler answers `GET /is-production` (§6).
func (h *APIHandler) IsProductionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"isProduction": h.cfg.IsProduction()})
}

// NotFoundHandler handles 404s with a JSON response.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"success": false,
		"error":   "not found",
		"path":    r.URL.Path,
	})
}
