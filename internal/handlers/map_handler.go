package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/mapper"
)

// MapRunner is the narrow slice of mapper.Mapper the handler needs.
type MapRunner interface {
	Map(ctx context.Context, req mapper.Request) ([]string, error)
}

var _ MapRunner = (*mapper.Mapper)(nil)

// MapHandler serves `POST /v1/map` (§6).
type MapHandler struct {
	runner MapRunner
	logger arbor.ILogger
}

func NewMapHandler(runner MapRunner, logger arbor.ILogger) *MapHandler {
	return &MapHandler{runner: runner, logger: logger}
}

func (h *MapHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req mapper.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	links, err := h.runner.Map(r.Context(), req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{"links": links})
}
