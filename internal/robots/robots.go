// Package robots implements the Robots Policy component (spec §4.B):
// fetch/parse/cache robots.txt and decide allow/deny for a URL.
//
// Grounded on ncecere-raito's internal/crawler/map.go (fetchRobots/Map),
// the only repo in the pack with a real robots.txt parse-and-enforce path;
// the teacher itself only exposes a boolean colly.IgnoreRobotsTxt() toggle.
package robots

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"github.com/ternarybob/arbor"
)

const defaultTTL = time.Hour

type cacheEntry struct {
	group     *robotstxt.Group
	fetchedAt time.Time
	failed    bool
}

// Policy fetches, parses, and caches robots.txt per (scheme+host), with a
// configurable TTL (default 1h, §4.B).
type Policy struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    arbor.ILogger

	mu    sync.Mutex
	cache map[string]*cacheEntry
	// locks serializes concurrent fetches for the same host to avoid a
	// thundering herd (§5 "Robots cache: ... write-through with per-host lock").
	locks map[string]*sync.Mutex
}

// New builds a Policy. skipTLSVerify mirrors the scrape's own TLS policy
// (§4.B "fetch /robots.txt with the same TLS policy as the scrape").
func New(logger arbor.ILogger, userAgent string, skipTLSVerify bool, ttl time.Duration) *Policy {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	transport := &http.Transport{}
	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // caller-requested per scrape options
	}
	return &Policy{
		client:    &http.Client{Transport: transport, Timeout: 15 * time.Second},
		userAgent: userAgent,
		ttl:       ttl,
		logger:    logger,
		cache:     make(map[string]*cacheEntry),
		locks:     make(map[string]*sync.Mutex),
	}
}

func cacheKey(u *url.URL) string {
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func (p *Policy) hostLock(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

// group returns the robots.txt group for pageURL's host, fetching and
// caching it if absent or expired. Malformed or unreachable robots.txt
// fails open to "allowed" (§4.B) — group is nil and no error surfaces.
func (p *Policy) group(ctx context.Context, pageURL string) *robotstxt.Group {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	key := cacheKey(u)

	p.mu.Lock()
	entry, ok := p.cache[key]
	p.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < p.ttl {
		return entry.group
	}

	lock := p.hostLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the per-host lock: another goroutine may have
	// refreshed it while we waited.
	p.mu.Lock()
	entry, ok = p.cache[key]
	p.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < p.ttl {
		return entry.group
	}

	group := p.fetch(ctx, u)
	p.mu.Lock()
	p.cache[key] = &cacheEntry{group: group, fetchedAt: time.Now()}
	p.mu.Unlock()
	return group
}

func (p *Policy) fetch(ctx context.Context, base *url.URL) *robotstxt.Group {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		p.logger.Warn().Err(err).Str("host", base.Host).Msg("failed to build robots.txt request")
		return nil
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn().Err(err).Str("host", base.Host).Msg("robots.txt fetch failed, failing open")
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		p.logger.Warn().Err(err).Str("host", base.Host).Msg("failed to read robots.txt body")
		return nil
	}

	// robotstxt.FromStatusAndBytes tolerates non-UTF8/null bytes internally
	// by operating on the raw byte stream; a parse panic would indicate a
	// genuinely malformed document, which we treat as fail-open per §4.B.
	robotsData, err := p.parseRecovering(resp.StatusCode, body)
	if err != nil {
		p.logger.Warn().Err(err).Str("host", base.Host).Msg("failed to parse robots.txt, failing open")
		return nil
	}

	ua := p.userAgent
	if ua == "" {
		ua = "*"
	}
	return robotsData.FindGroup(ua)
}

func (p *Policy) parseRecovering(status int, body []byte) (data *robotstxt.RobotsData, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = context.DeadlineExceeded // placeholder distinct error; caller only logs+fails-open
		}
	}()
	return robotstxt.FromStatusAndBytes(status, body)
}

// IsAllowed reports whether ua may fetch rawURL per the cached robots.txt
// for its host. Fails open (true) if no policy could be determined.
func (p *Policy) IsAllowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	g := p.group(ctx, rawURL)
	if g == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return g.Test(path)
}

// RefreshAll force-refetches every host currently in the cache, ignoring
// the TTL. Intended to be driven by a Scheduler on a cron interval so
// long-lived hosts don't all expire-and-refetch on the same request.
func (p *Policy) RefreshAll(ctx context.Context) {
	p.mu.Lock()
	keys := make([]string, 0, len(p.cache))
	for key := range p.cache {
		keys = append(keys, key)
	}
	p.mu.Unlock()

	for _, key := range keys {
		u, err := url.Parse(key)
		if err != nil {
			continue
		}
		lock := p.hostLock(key)
		lock.Lock()
		group := p.fetch(ctx, u)
		p.mu.Lock()
		p.cache[key] = &cacheEntry{group: group, fetchedAt: time.Now()}
		p.mu.Unlock()
		lock.Unlock()
	}

	p.logger.Debug().Int("hosts", len(keys)).Msg("robots: refreshed cached entries")
}

// DenialReasonRobotsTxt is the denial-reason value used in FilterLinks'
// output map (§4.B).
const DenialReasonRobotsTxt = "ROBOTS_TXT"

// FilterLinks partitions links into kept (allowed) and a denial-reason map
// for the rest (§4.B "filterLinks(links, base, robotsTxt)").
func (p *Policy) FilterLinks(ctx context.Context, links []string) (kept []string, denialReasons map[string]string) {
	denialReasons = make(map[string]string)
	for _, link := range links {
		if p.IsAllowed(ctx, link) {
			kept = append(kept, link)
		} else {
			denialReasons[link] = DenialReasonRobotsTxt
		}
	}
	return kept, denialReasons
}

// FilterLinksWithDoc parses a raw robots.txt document directly (used by
// this package's tests; the /v1/map handler does not call it).
func FilterLinksWithDoc(links []string, robotsTxtDoc string) (kept []string, denialReasons map[string]string) {
	denialReasons = make(map[string]string)
	data, err := robotstxt.FromString(robotsTxtDoc)
	if err != nil {
		// Malformed document: fail open, everything kept.
		return links, denialReasons
	}
	group := data.FindGroup("*")
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil {
			kept = append(kept, link)
			continue
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		if group.Test(path) {
			kept = append(kept, link)
		} else {
			denialReasons[link] = DenialReasonRobotsTxt
		}
	}
	return kept, denialReasons
}
