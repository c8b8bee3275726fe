package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/robots"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

type fakeJobAdapter struct {
	docFor func(url string) models.Document
}

func (f *fakeJobAdapter) Scrape(ctx context.Context, url string, opts models.ScrapeOptions) (models.Document, error) {
	if f.docFor != nil {
		return f.docFor(url), nil
	}
	return models.Document{Metadata: models.DocumentMetadata{SourceURL: url}}, nil
}

type fakeJobStore struct {
	saved []models.CrawlJob
}

func (f *fakeJobStore) Save(ctx context.Context, job *models.CrawlJob) error {
	f.saved = append(f.saved, *job)
	return nil
}

type fakeResultStore struct {
	docs []models.Document
}

func (f *fakeResultStore) SaveResult(ctx context.Context, jobID string, doc models.Document) error {
	f.docs = append(f.docs, doc)
	return nil
}

type fakeWebhookEmitter struct {
	events []models.WebhookEvent
}

func (f *fakeWebhookEmitter) Emit(ctx context.Context, cfg models.WebhookConfig, event models.WebhookEvent) {
	f.events = append(f.events, event)
}

func newTestCoordinator(adapter JobAdapter, store JobStore, results ResultStore, webhooks WebhookEmitter) *Coordinator {
	validator := urlvalid.New(nil)
	robotsPolicy := robots.New(arbor.NewLogger(), "test-agent", false, time.Hour)
	return NewCoordinator(validator, robotsPolicy, adapter, webhooks, store, results, 2, arbor.NewLogger())
}

func TestCoordinator_Run_CompletesSingleURLCrawl(t *testing.T) {
	adapter := &fakeJobAdapter{docFor: func(url string) models.Document {
		return models.Document{Metadata: models.DocumentMetadata{SourceURL: url}}
	}}
	store := &fakeJobStore{}
	results := &fakeResultStore{}
	webhooks := &fakeWebhookEmitter{}
	coord := newTestCoordinator(adapter, store, results, webhooks)

	job := &models.CrawlJob{
		ID:      "job-1",
		SeedURL: "https://example.com",
		Scope:   models.CrawlerOptions{MaxDepth: 0, Limit: 1, IgnoreSitemap: true, IgnoreRobotsTxt: true},
	}

	coord.Run(context.Background(), job)

	assert.Equal(t, models.JobStateCompleted, job.State)
	assert.Equal(t, 1, job.Completed)
	require.Len(t, results.docs, 1)
	assert.NotEmpty(t, webhooks.events)
}

func TestCoordinator_Run_InvalidSeedURLFails(t *testing.T) {
	adapter := &fakeJobAdapter{}
	store := &fakeJobStore{}
	coord := newTestCoordinator(adapter, store, nil, nil)

	job := &models.CrawlJob{ID: "job-2", SeedURL: "not a url", Scope: models.DefaultCrawlerOptions()}
	coord.Run(context.Background(), job)

	assert.Equal(t, models.JobStateFailed, job.State)
	assert.NotEmpty(t, job.Errors)
}

func TestCoordinator_Run_CancelledContextEndsInCancelledState(t *testing.T) {
	adapter := &fakeJobAdapter{docFor: func(url string) models.Document {
		time.Sleep(50 * time.Millisecond)
		return models.Document{Metadata: models.DocumentMetadata{SourceURL: url}, Links: []string{url + "/a", url + "/b"}}
	}}
	store := &fakeJobStore{}
	coord := newTestCoordinator(adapter, store, nil, nil)

	job := &models.CrawlJob{
		ID:      "job-3",
		SeedURL: "https://example.com",
		Scope:   models.CrawlerOptions{MaxDepth: 10, Limit: 1000, IgnoreSitemap: true, IgnoreRobotsTxt: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	coord.Run(ctx, job)

	assert.Equal(t, models.JobStateCancelled, job.State)
}
