package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/mapper"
)

type stubMapRunner struct {
	links []string
	err   error
}

func (s stubMapRunner) Map(ctx context.Context, req mapper.Request) ([]string, error) {
	return s.links, s.err
}

func TestMapHandler_RejectsNonPost(t *testing.T) {
	h := NewMapHandler(stubMapRunner{}, arbor.NewLogger())
	req := httptest.NewRequest(http.MethodGet, "/v1/map", nil)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMapHandler_ReturnsLinksOnSuccess(t *testing.T) {
	runner := stubMapRunner{links: []string{"https://example.com/a", "https://example.com/b"}}
	h := NewMapHandler(runner, arbor.NewLogger())
	body := strings.NewReader(`{"url":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/map", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	links, ok := resp["links"].([]interface{})
	require.True(t, ok)
	assert.Len(t, links, 2)
}

func TestMapHandler_MapsAppErrorToStatus(t *testing.T) {
	runner := stubMapRunner{err: apperr.New(apperr.KindInvalidURL, "bad seed")}
	h := NewMapHandler(runner, arbor.NewLogger())
	body := strings.NewReader(`{"url":"not a url"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/map", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMapHandler_RejectsMalformedJSON(t *testing.T) {
	h := NewMapHandler(stubMapRunner{}, arbor.NewLogger())
	body := strings.NewReader(`{not json`)
	req := httptest.NewRequest(http.MethodPost, "/v1/map", body)
	w := httptest.NewRecorder()

	h.Handle(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
