package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/jobqueue"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

type stubCrawlStore struct {
	mu      sync.Mutex
	jobs    map[string]*models.CrawlJob
	nextID  int
	cancels map[string]context.CancelFunc
}

func newStubCrawlStore() *stubCrawlStore {
	return &stubCrawlStore{jobs: make(map[string]*models.CrawlJob), cancels: make(map[string]context.CancelFunc)}
}

func (s *stubCrawlStore) Enqueue(ctx context.Context, kind string, job *models.CrawlJob, opts jobqueue.EnqueueOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := "job-1"
	job.ID = id
	s.jobs[id] = job
	return id, nil
}

func (s *stubCrawlStore) Get(ctx context.Context, jobID string) (*models.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "job not found")
	}
	return job, nil
}

func (s *stubCrawlStore) Cancel(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "job not found")
	}
	job.State = models.JobStateCancelled
	if cancel, ok := s.cancels[jobID]; ok {
		cancel()
	}
	return nil
}

func (s *stubCrawlStore) RegisterCancel(jobID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[jobID] = cancel
}

func (s *stubCrawlStore) ListResults(ctx context.Context, jobID string, offset, limit int) ([]models.Document, bool, error) {
	return []models.Document{{Markdown: "doc1"}}, false, nil
}

type stubCrawlRunner struct {
	started chan struct{}
}

func (r stubCrawlRunner) Run(ctx context.Context, job *models.CrawlJob) {
	if r.started != nil {
		close(r.started)
	}
	<-ctx.Done()
}

func TestCrawlHandler_CreateReturnsJobID(t *testing.T) {
	store := newStubCrawlStore()
	started := make(chan struct{})
	h := NewCrawlHandler(store, stubCrawlRunner{started: started}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	body := strings.NewReader(`{"url":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", body)
	w := httptest.NewRecorder()

	h.HandleCreate(w, req)
	<-started

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp["id"])
}

func TestCrawlHandler_QuickProfileClampsDepthAndLimit(t *testing.T) {
	store := newStubCrawlStore()
	started := make(chan struct{})
	h := NewCrawlHandler(store, stubCrawlRunner{started: started}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	body := strings.NewReader(`{"url":"https://example.com","quick":true,"maxDepth":10,"limit":100}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", body)
	w := httptest.NewRecorder()

	h.HandleCreate(w, req)
	<-started

	assert.Equal(t, http.StatusOK, w.Code)
	store.mu.Lock()
	job := store.jobs["job-1"]
	store.mu.Unlock()
	require.NotNil(t, job)
	assert.Equal(t, 2, job.Scope.MaxDepth)
	assert.Equal(t, 10, job.Scope.Limit)
}

func TestCrawlHandler_QuickProfileLeavesNarrowerCallerValues(t *testing.T) {
	store := newStubCrawlStore()
	started := make(chan struct{})
	h := NewCrawlHandler(store, stubCrawlRunner{started: started}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	body := strings.NewReader(`{"url":"https://example.com","quick":true,"maxDepth":1,"limit":3}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", body)
	w := httptest.NewRecorder()

	h.HandleCreate(w, req)
	<-started

	store.mu.Lock()
	job := store.jobs["job-1"]
	store.mu.Unlock()
	require.NotNil(t, job)
	assert.Equal(t, 1, job.Scope.MaxDepth)
	assert.Equal(t, 3, job.Scope.Limit)
}

func TestCrawlHandler_CreateRejectsInvalidURL(t *testing.T) {
	store := newStubCrawlStore()
	h := NewCrawlHandler(store, stubCrawlRunner{}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	body := strings.NewReader(`{"url":"ftp://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/crawl", body)
	w := httptest.NewRecorder()

	h.HandleCreate(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCrawlHandler_GetUnknownJobIs404(t *testing.T) {
	store := newStubCrawlStore()
	h := NewCrawlHandler(store, stubCrawlRunner{}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	req := httptest.NewRequest(http.MethodGet, "/v1/crawl/unknown", nil)
	w := httptest.NewRecorder()

	h.HandleGet(w, req, "unknown")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCrawlHandler_GetReturnsResults(t *testing.T) {
	store := newStubCrawlStore()
	store.jobs["job-1"] = &models.CrawlJob{ID: "job-1", State: models.JobStateCompleted, Total: 1, Completed: 1}
	h := NewCrawlHandler(store, stubCrawlRunner{}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	req := httptest.NewRequest(http.MethodGet, "/v1/crawl/job-1", nil)
	w := httptest.NewRecorder()

	h.HandleGet(w, req, "job-1")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(models.JobStateCompleted), resp["status"])
}

func TestCrawlHandler_DeleteCancelsJob(t *testing.T) {
	store := newStubCrawlStore()
	store.jobs["job-1"] = &models.CrawlJob{ID: "job-1", State: models.JobStateScraping}
	h := NewCrawlHandler(store, stubCrawlRunner{}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	req := httptest.NewRequest(http.MethodDelete, "/v1/crawl/job-1", nil)
	w := httptest.NewRecorder()

	h.HandleDelete(w, req, "job-1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.JobStateCancelled, store.jobs["job-1"].State)
}

func TestCrawlHandler_ErrorsReturnsEmptyListsNotNull(t *testing.T) {
	store := newStubCrawlStore()
	store.jobs["job-1"] = &models.CrawlJob{ID: "job-1"}
	h := NewCrawlHandler(store, stubCrawlRunner{}, urlvalid.New(nil), 10, arbor.NewLogger(), 2, 10)

	req := httptest.NewRequest(http.MethodGet, "/v1/crawl/job-1/errors", nil)
	w := httptest.NewRecorder()

	h.HandleErrors(w, req, "job-1")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp["errors"])
	assert.NotNil(t, resp["robotsBlocked"])
}

func TestCrawlHandler_ConcurrencyCheckReportsActiveCount(t *testing.T) {
	store := newStubCrawlStore()
	h := NewCrawlHandler(store, stubCrawlRunner{}, urlvalid.New(nil), 5, arbor.NewLogger(), 2, 10)

	req := httptest.NewRequest(http.MethodGet, "/v1/concurrency-check", nil)
	w := httptest.NewRecorder()

	h.HandleConcurrencyCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(5), resp["maxConcurrency"])
}
