package models

import "time"

// JobState is the lifecycle state of a CrawlJob (§3, §6 wire values).
type JobState string

const (
	JobStateScraping  JobState = "scraping"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// IsTerminal reports whether s is an absorbing state (§3 invariant:
// "terminal states are absorbing").
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// CrawlerOptions scopes a crawl (§3).
type CrawlerOptions struct {
	IncludePaths           []string `json:"includePaths,omitempty"`
	ExcludePaths           []string `json:"excludePaths,omitempty"`
	RegexOnFullURL         bool     `json:"regexOnFullURL,omitempty"`
	MaxDepth               int      `json:"maxDepth,omitempty"`
	MaxDiscoveryDepth      int      `json:"maxDiscoveryDepth,omitempty"`
	Limit                  int      `json:"limit,omitempty"`
	AllowBackwardLinks     bool     `json:"allowBackwardLinks,omitempty"`
	CrawlEntireDomain      bool     `json:"crawlEntireDomain,omitempty"`
	AllowExternalLinks     bool     `json:"allowExternalLinks,omitempty"`
	AllowSubdomains        bool     `json:"allowSubdomains,omitempty"`
	IgnoreRobotsTxt        bool     `json:"ignoreRobotsTxt,omitempty"`
	IgnoreSitemap          bool     `json:"ignoreSitemap,omitempty"`
	DeduplicateSimilarURLs bool     `json:"deduplicateSimilarURLs,omitempty"`
	IgnoreQueryParameters  bool     `json:"ignoreQueryParameters,omitempty"`
	DelaySeconds           float64  `json:"delay,omitempty"`
	// Quick is a supplemented lightweight crawl profile (SPEC_FULL §9) that
	// caps MaxDepth/Limit at the configured quick-crawl ceilings; a value the
	// caller set that is already narrower than its ceiling is kept.
	Quick bool `json:"quick,omitempty"`
}

// DefaultCrawlerOptions applies the spec's implied defaults.
func DefaultCrawlerOptions() CrawlerOptions {
	return CrawlerOptions{
		MaxDepth:          10,
		MaxDiscoveryDepth: 10,
		Limit:             100,
	}
}

// CrawlError is one entry in CrawlJob.Errors (§6 "/v1/crawl/{id}/errors").
type CrawlError struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// CrawlJob is the crawl coordinator's persisted job record (§3).
type CrawlJob struct {
	ID            string         `json:"id"`
	SeedURL       string         `json:"seedURL"`
	Scope         CrawlerOptions `json:"scope"`
	ScrapeOptions ScrapeOptions  `json:"scrapeOptions"`
	Webhook       *WebhookConfig `json:"webhook,omitempty"`
	State         JobState       `json:"state"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     time.Time      `json:"startedAt,omitempty"`
	CompletedAt   time.Time      `json:"completedAt,omitempty"`
	Total         int            `json:"total"`     // best-estimate = enqueued
	Completed     int            `json:"completed"`
	Discovered    int            `json:"discovered"`
	CreditsUsed   int            `json:"creditsUsed"`
	Errors        []CrawlError   `json:"errors,omitempty"`
	RobotsBlocked []string       `json:"robotsBlocked,omitempty"`
}

// Invariant reports whether CrawlJob's documented invariants hold. Nothing
// in the module calls it.
func (j *CrawlJob) Invariant() bool {
	if j.Completed > j.Total {
		return false
	}
	if j.Scope.Limit > 0 && j.Total > j.Scope.Limit {
		return false
	}
	return true
}

// Cancel marks the job cancelled. Cancellation wins over completion if it
// arrives during flush (§3 invariant).
func (j *CrawlJob) Cancel() {
	j.State = JobStateCancelled
	if j.CompletedAt.IsZero() {
		j.CompletedAt = time.Now()
	}
}

// WebhookConfig configures the Job Adapter's event emitter (§4.L, §6).
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Secret  string            `json:"secret,omitempty"` // HMAC-SHA256 signing key
}

// WebhookEvent is one POSTed event (§6 "Webhook").
type WebhookEvent struct {
	Event string      `json:"event"` // started | page | completed | failed
	JobID string      `json:"jobId"`
	Data  interface{} `json:"data,omitempty"`
}

// FrontierEntry is one pending-visit record in the crawl frontier (§3).
// Depth is counted along the seed-path chain (§4.K scope rule 1);
// DiscoveryDepth is counted along the discovery chain (rule 2) and can
// exceed Depth when a link is reached via a long chain of sibling pages.
// DiscoveryOrder is a monotonically increasing counter used to break depth
// ties in FIFO order within the frontier (§4.K "Loop": "depth asc,
// discovery order asc").
type FrontierEntry struct {
	URL            string    `json:"url"`
	Depth          int       `json:"depth"`
	DiscoveryDepth int       `json:"discoveryDepth"`
	Parent         string    `json:"parent,omitempty"`
	Priority       int       `json:"priority"`
	DiscoveryOrder int64     `json:"discoveryOrder"`
	AddedAt        time.Time `json:"addedAt"`
}
