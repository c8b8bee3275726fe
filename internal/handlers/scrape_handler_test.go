package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

type stubScrapeRunner struct {
	doc models.Document
	err error
}

func (s stubScrapeRunner) Scrape(ctx context.Context, url string, opts models.ScrapeOptions) (models.Document, error) {
	return s.doc, s.err
}

func TestScrapeHandler_RejectsNonPost(t *testing.T) {
	h := NewScrapeHandler(urlvalid.New(nil), stubScrapeRunner{}, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodGet, "/v1/scrape", nil)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestScrapeHandler_RejectsInvalidURL(t *testing.T) {
	h := NewScrapeHandler(urlvalid.New(nil), stubScrapeRunner{}, arbor.NewLogger())
	body := strings.NewReader(`{"url":"ftp://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
}

func TestScrapeHandler_ReturnsDocumentOnSuccess(t *testing.T) {
	runner := stubScrapeRunner{doc: models.Document{Markdown: "# hi"}}
	h := NewScrapeHandler(urlvalid.New(nil), runner, arbor.NewLogger())
	body := strings.NewReader(`{"url":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}

func TestScrapeHandler_MapsAppErrorToStatus(t *testing.T) {
	runner := stubScrapeRunner{err: apperr.New(apperr.KindScrapeTimeout, "took too long")}
	h := NewScrapeHandler(urlvalid.New(nil), runner, arbor.NewLogger())
	body := strings.NewReader(`{"url":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusRequestTimeout, w.Code)
}

func TestScrapeHandler_FailureWithSensitiveHeadersIs500(t *testing.T) {
	runner := stubScrapeRunner{err: errors.New("boom")}
	h := NewScrapeHandler(urlvalid.New(nil), runner, arbor.NewLogger())
	body := strings.NewReader(`{"url":"https://example.com","headers":{"Authorization":"Bearer secret"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestScrapeHandler_UntypedErrorIs500(t *testing.T) {
	runner := stubScrapeRunner{err: errors.New("boom")}
	h := NewScrapeHandler(urlvalid.New(nil), runner, arbor.NewLogger())
	body := strings.NewReader(`{"url":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/scrape", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
