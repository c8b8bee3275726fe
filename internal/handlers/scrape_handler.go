package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

// ScrapeRunner is the narrow slice of scrape.Orchestrator the handler needs
// (§4.E "Inputs: validated URL, ScrapeOptions"). Kept local so this package
// doesn't depend on the concrete orchestrator type.
type ScrapeRunner interface {
	Scrape(ctx context.Context, url string, opts models.ScrapeOptions) (models.Document, error)
}

// ScrapeHandler serves `POST /v1/scrape` (§6).
type ScrapeHandler struct {
	validator *urlvalid.Validator
	runner    ScrapeRunner
	logger    arbor.ILogger
}

func NewScrapeHandler(validator *urlvalid.Validator, runner ScrapeRunner, logger arbor.ILogger) *ScrapeHandler {
	return &ScrapeHandler{validator: validator, runner: runner, logger: logger}
}

type scrapeRequest struct {
	URL string `json:"url"`
	models.ScrapeOptions
}

func (h *ScrapeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req scrapeRequest
	req.ScrapeOptions = models.DefaultScrapeOptions()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seedURL, err := h.validator.Validate(req.URL)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	doc, err := h.runner.Scrape(r.Context(), seedURL, req.ScrapeOptions)
	if err != nil {
		maskedHeaders, _ := json.Marshal(models.MaskSensitiveData(req.ScrapeOptions.Headers))
		h.logger.Warn().Err(err).Str("url", seedURL).Str("headers", string(maskedHeaders)).Msg("scrape: failed")
		if _, ok := apperr.As(err); ok {
			WriteAppError(w, err)
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{"data": doc})
}
