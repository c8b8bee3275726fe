package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/common"
	"github.com/wayfarer-labs/scrapeforge/internal/jobqueue"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

// resultTTL is how long a finished crawl's accumulated results stay
// reachable before a caller should consider them gone (§6 `expiresAt`).
// The spec names the field but not a value; picked to match Firecrawl's
// documented 24h job-result retention window.
const resultTTL = 24 * time.Hour

var _ CrawlJobStore = (*jobqueue.Manager)(nil)

// CrawlJobStore is the narrow slice of jobqueue.Manager the handler needs.
type CrawlJobStore interface {
	Enqueue(ctx context.Context, kind string, job *models.CrawlJob, opts jobqueue.EnqueueOptions) (string, error)
	Get(ctx context.Context, jobID string) (*models.CrawlJob, error)
	Cancel(ctx context.Context, jobID string) error
	RegisterCancel(jobID string, cancel context.CancelFunc)
	ListResults(ctx context.Context, jobID string, offset, limit int) ([]models.Document, bool, error)
}

// CrawlRunner is the narrow slice of crawl.Coordinator the handler needs.
type CrawlRunner interface {
	Run(ctx context.Context, job *models.CrawlJob)
}

// CrawlHandler serves `POST /v1/crawl`, `GET|DELETE /v1/crawl/{id}`,
// `GET /v1/crawl/{id}/errors`, and `GET /v1/concurrency-check` (§6).
type CrawlHandler struct {
	store          CrawlJobStore
	runner         CrawlRunner
	validator      *urlvalid.Validator
	maxConcurrency int
	active         int64
	logger         arbor.ILogger
	// quickMaxDepth/quickMaxPages cap CrawlerOptions.MaxDepth/Limit when the
	// request sets Quick (SPEC_FULL §9 "Quick-crawl mode"). Zero disables
	// the corresponding cap.
	quickMaxDepth int
	quickMaxPages int
}

func NewCrawlHandler(store CrawlJobStore, runner CrawlRunner, validator *urlvalid.Validator, maxConcurrency int, logger arbor.ILogger, quickMaxDepth, quickMaxPages int) *CrawlHandler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &CrawlHandler{
		store:          store,
		runner:         runner,
		validator:      validator,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		quickMaxDepth:  quickMaxDepth,
		quickMaxPages:  quickMaxPages,
	}
}

// applyQuickProfile caps MaxDepth/Limit to the configured quick-crawl
// ceiling when the caller set Quick, leaving narrower caller-supplied
// values untouched (SPEC_FULL §9).
func (h *CrawlHandler) applyQuickProfile(opts *models.CrawlerOptions) {
	if !opts.Quick {
		return
	}
	if h.quickMaxDepth > 0 && (opts.MaxDepth == 0 || opts.MaxDepth > h.quickMaxDepth) {
		opts.MaxDepth = h.quickMaxDepth
	}
	if h.quickMaxPages > 0 && (opts.Limit == 0 || opts.Limit > h.quickMaxPages) {
		opts.Limit = h.quickMaxPages
	}
}

type crawlRequest struct {
	URL     string                `json:"url"`
	Webhook *models.WebhookConfig `json:"webhook,omitempty"`
	models.CrawlerOptions
	ScrapeOptions *models.ScrapeOptions `json:"scrapeOptions,omitempty"`
}

// HandleCreate serves `POST /v1/crawl`.
func (h *CrawlHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req := crawlRequest{CrawlerOptions: models.DefaultCrawlerOptions()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	seedURL, err := h.validator.Validate(req.URL)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	scrapeOpts := models.DefaultScrapeOptions()
	if req.ScrapeOptions != nil {
		scrapeOpts = *req.ScrapeOptions
	}

	h.applyQuickProfile(&req.CrawlerOptions)

	job := &models.CrawlJob{
		SeedURL:       seedURL,
		Scope:         req.CrawlerOptions,
		ScrapeOptions: scrapeOpts,
		Webhook:       req.Webhook,
		State:         models.JobStateScraping,
		CreatedAt:     time.Now(),
	}

	jobID, err := h.store.Enqueue(r.Context(), "crawl", job, jobqueue.EnqueueOptions{})
	if err != nil {
		WriteAppError(w, err)
		return
	}
	job.ID = jobID

	runCtx, cancel := context.WithCancel(context.Background())
	h.store.RegisterCancel(jobID, cancel)
	atomic.AddInt64(&h.active, 1)
	common.SafeGoWithContext(runCtx, h.logger, "crawl:"+jobID, func() {
		defer atomic.AddInt64(&h.active, -1)
		defer cancel()
		h.runner.Run(runCtx, job)
	})

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"id":  jobID,
		"url": "/v1/crawl/" + jobID,
	})
}

// HandleGet serves `GET /v1/crawl/{id}`.
func (h *CrawlHandler) HandleGet(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	offset := 0
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	docs, hasMore, err := h.store.ListResults(r.Context(), jobID, offset, limit)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	resp := map[string]interface{}{
		"status":      job.State,
		"completed":   job.Completed,
		"total":       job.Total,
		"creditsUsed": job.CreditsUsed,
		"expiresAt":   job.CreatedAt.Add(resultTTL),
		"data":        docs,
	}
	if hasMore {
		effectiveLimit := limit
		if effectiveLimit <= 0 {
			effectiveLimit = len(docs)
		}
		resp["next"] = "/v1/crawl/" + jobID + "?skip=" + strconv.Itoa(offset+effectiveLimit)
	}
	WriteSuccess(w, http.StatusOK, resp)
}

// HandleDelete serves `DELETE /v1/crawl/{id}`.
func (h *CrawlHandler) HandleDelete(w http.ResponseWriter, r *http.Request, jobID string) {
	if _, err := h.store.Get(r.Context(), jobID); err != nil {
		WriteAppError(w, err)
		return
	}
	if err := h.store.Cancel(r.Context(), jobID); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// HandleErrors serves `GET /v1/crawl/{id}/errors`.
func (h *CrawlHandler) HandleErrors(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.Get(r.Context(), jobID)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	errs := job.Errors
	if errs == nil {
		errs = []models.CrawlError{}
	}
	robotsBlocked := job.RobotsBlocked
	if robotsBlocked == nil {
		robotsBlocked = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"errors":        errs,
		"robotsBlocked": robotsBlocked,
	})
}

// HandleConcurrencyCheck serves `GET /v1/concurrency-check`.
func (h *CrawlHandler) HandleConcurrencyCheck(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"concurrency":    atomic.LoadInt64(&h.active),
		"maxConcurrency": h.maxConcurrency,
	})
}
