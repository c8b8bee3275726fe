// Package crawl implements the Crawl Coordinator (spec §4.K): scope
// predicate, priority frontier, per-host rate limiting, and the
// start/loop/terminate state machine driving a CrawlJob to completion.
package crawl

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/robots"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

// JobAdapter is the narrow slice of the Job Adapter (§4.L) the coordinator
// needs: run one scrape and return its Document. Implemented by
// scrape.Orchestrator (wired in internal/app), kept as a local interface
// here (as transform.BlobStore/Extractor do) so this package doesn't import
// the orchestrator.
type JobAdapter interface {
	Scrape(ctx context.Context, url string, opts models.ScrapeOptions) (models.Document, error)
}

// WebhookEmitter posts crawl lifecycle events, implemented by
// internal/webhook (§4.L "Webhook emitter posts started/page/completed/
// failed events with signed headers").
type WebhookEmitter interface {
	Emit(ctx context.Context, cfg models.WebhookConfig, event models.WebhookEvent)
}

// JobStore persists CrawlJob state transitions so GET/DELETE /v1/crawl/{id}
// reflect live progress (§6).
type JobStore interface {
	Save(ctx context.Context, job *models.CrawlJob) error
}

// ResultStore persists each successfully scraped Document so GET
// /v1/crawl/{id} can return the accumulated `data` array (§6). Optional:
// a nil ResultStore simply drops results, which is fine for callers only
// interested in progress/webhooks.
type ResultStore interface {
	SaveResult(ctx context.Context, jobID string, doc models.Document) error
}

// Coordinator drives one CrawlJob from seed URL to a terminal state.
type Coordinator struct {
	validator   *urlvalid.Validator
	robots      *robots.Policy
	jobAdapter  JobAdapter
	webhooks    WebhookEmitter
	store       JobStore
	results     ResultStore
	httpClient  *http.Client
	logger      arbor.ILogger
	concurrency int
}

// NewCoordinator builds a Coordinator. concurrency bounds the number of
// scrapes run at once for a single job (§5 "bounded pool of concurrent
// scrapes per team/job"). results may be nil if the caller doesn't need
// accumulated Documents (e.g. webhook-only integrations).
func NewCoordinator(validator *urlvalid.Validator, robotsPolicy *robots.Policy, jobAdapter JobAdapter, webhooks WebhookEmitter, store JobStore, results ResultStore, concurrency int, logger arbor.ILogger) *Coordinator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Coordinator{
		validator:   validator,
		robots:      robotsPolicy,
		jobAdapter:  jobAdapter,
		webhooks:    webhooks,
		store:       store,
		results:     results,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
		logger:      logger,
		concurrency: concurrency,
	}
}

// Run executes job to completion, mutating job in place as it progresses
// and persisting each transition via JobStore. ctx cancellation moves the
// job to JobStateCancelled (§4.K Termination).
func (c *Coordinator) Run(ctx context.Context, job *models.CrawlJob) {
	job.State = models.JobStateScraping
	job.StartedAt = time.Now()
	c.persist(ctx, job)
	if c.webhooks != nil && job.Webhook != nil {
		c.webhooks.Emit(ctx, *job.Webhook, models.WebhookEvent{Event: "started", JobID: job.ID})
	}

	seedURL, err := c.validator.Validate(job.SeedURL)
	if err != nil {
		c.fail(ctx, job, err)
		return
	}

	scopeJobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	predicate, err := NewScopePredicate(seedURL, job.Scope, c.robotsIfEnabled(job.Scope))
	if err != nil {
		c.fail(ctx, job, err)
		return
	}

	frontier := NewFrontier()
	rateLimiter := NewRateLimiter(time.Duration(job.Scope.DelaySeconds * float64(time.Second)))

	var discoveryCounter int64
	seed := models.FrontierEntry{URL: seedURL, Depth: 0, DiscoveryDepth: 0, DiscoveryOrder: atomic.AddInt64(&discoveryCounter, 1), AddedAt: time.Now()}
	frontier.Push(seed, urlvalid.Normalize(seedURL))
	predicate.MarkSeen(seedURL)
	job.Total = 1
	job.Discovered = 1

	if !job.Scope.IgnoreSitemap {
		for _, loc := range LoadSitemap(ctx, c.httpClient, sitemapURLFor(seedURL)) {
			if predicate.Allowed(ctx, loc, 1, 1).Allowed {
				entry := models.FrontierEntry{URL: loc, Depth: 1, DiscoveryDepth: 1, Parent: seedURL, DiscoveryOrder: atomic.AddInt64(&discoveryCounter, 1), AddedAt: time.Now()}
				if frontier.Push(entry, urlvalid.Normalize(loc)) {
					predicate.MarkSeen(loc)
					job.Total++
					job.Discovered++
				}
			}
		}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)

	for {
		if scopeJobCtx.Err() != nil {
			job.Cancel()
			c.persist(ctx, job)
			if c.webhooks != nil && job.Webhook != nil {
				c.webhooks.Emit(ctx, *job.Webhook, models.WebhookEvent{Event: "failed", JobID: job.ID, Data: "cancelled"})
			}
			return
		}

		mu.Lock()
		limitReached := job.Scope.Limit > 0 && job.Completed >= job.Scope.Limit
		mu.Unlock()
		if limitReached {
			break
		}
		if frontier.Len() == 0 {
			// Drain in-flight work before declaring completion; it may
			// enqueue further links.
			wg.Wait()
			if frontier.Len() == 0 {
				break
			}
			continue
		}

		entry, ok, err := frontier.Pop(scopeJobCtx)
		if err != nil || !ok {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(entry models.FrontierEntry) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := rateLimiter.Wait(scopeJobCtx, entry.URL); err != nil {
				return
			}

			doc, err := c.jobAdapter.Scrape(scopeJobCtx, entry.URL, job.ScrapeOptions)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				job.Errors = append(job.Errors, models.CrawlError{URL: entry.URL, Error: err.Error(), Timestamp: time.Now()})
				c.persist(ctx, job)
				return
			}

			job.Completed++
			job.CreditsUsed++
			c.persist(ctx, job)
			if c.results != nil {
				if err := c.results.SaveResult(ctx, job.ID, doc); err != nil {
					c.logger.Warn().Err(err).Str("job_id", job.ID).Str("url", entry.URL).Msg("crawl: failed to save result")
				}
			}
			if c.webhooks != nil && job.Webhook != nil {
				c.webhooks.Emit(ctx, *job.Webhook, models.WebhookEvent{Event: "page", JobID: job.ID, Data: doc})
			}

			for _, link := range doc.Links {
				decision := predicate.Allowed(scopeJobCtx, link, entry.Depth+1, entry.DiscoveryDepth+1)
				if !decision.Allowed {
					if decision.Reason == "robots disallow" {
						job.RobotsBlocked = append(job.RobotsBlocked, link)
					}
					continue
				}
				child := models.FrontierEntry{
					URL: link, Depth: entry.Depth + 1, DiscoveryDepth: entry.DiscoveryDepth + 1,
					Parent: entry.URL, DiscoveryOrder: atomic.AddInt64(&discoveryCounter, 1), AddedAt: time.Now(),
				}
				if frontier.Push(child, urlvalid.Normalize(link)) {
					predicate.MarkSeen(link)
					job.Discovered++
					job.Total++
				}
			}
		}(entry)
	}

	wg.Wait()
	frontier.Close()

	if scopeJobCtx.Err() != nil {
		job.Cancel()
	} else {
		job.State = models.JobStateCompleted
		job.CompletedAt = time.Now()
	}
	c.persist(ctx, job)
	if c.webhooks != nil && job.Webhook != nil {
		event := "completed"
		if job.State != models.JobStateCompleted {
			event = "failed"
		}
		c.webhooks.Emit(ctx, *job.Webhook, models.WebhookEvent{Event: event, JobID: job.ID})
	}
}

func (c *Coordinator) robotsIfEnabled(scope models.CrawlerOptions) *robots.Policy {
	if scope.IgnoreRobotsTxt {
		return nil
	}
	return c.robots
}

func (c *Coordinator) fail(ctx context.Context, job *models.CrawlJob, err error) {
	job.State = models.JobStateFailed
	job.CompletedAt = time.Now()
	job.Errors = append(job.Errors, models.CrawlError{URL: job.SeedURL, Error: err.Error(), Timestamp: time.Now()})
	c.persist(ctx, job)
	if c.webhooks != nil && job.Webhook != nil {
		c.webhooks.Emit(ctx, *job.Webhook, models.WebhookEvent{Event: "failed", JobID: job.ID, Data: err.Error()})
	}
}

func (c *Coordinator) persist(ctx context.Context, job *models.CrawlJob) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, job); err != nil {
		c.logger.Warn().Err(err).Str("job_id", job.ID).Msg("crawl: failed to persist job state")
	}
}

func sitemapURLFor(seedURL string) string {
	return strings.TrimSuffix(seedURL, "/") + "/sitemap.xml"
}
