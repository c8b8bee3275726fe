// Package mapper implements the `/v1/map` operation (§6): fast link
// discovery from a seed URL's sitemap and/or page body, without running a
// full crawl.
package mapper

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/crawl"
	"github.com/wayfarer-labs/scrapeforge/internal/transform"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

// Request carries the `/v1/map` body fields (§6).
type Request struct {
	URL               string `json:"url"`
	Search            string `json:"search,omitempty"`
	IncludeSubdomains bool   `json:"includeSubdomains,omitempty"`
	SitemapOnly       bool   `json:"sitemapOnly,omitempty"`
	Limit             int    `json:"limit,omitempty"`
	TimeoutMS         int    `json:"timeout,omitempty"`
}

// Mapper discovers links reachable from a seed URL.
type Mapper struct {
	validator *urlvalid.Validator
	extractor *transform.LinkExtractor
	client    *http.Client
	logger    arbor.ILogger
}

// New builds a Mapper.
func New(validator *urlvalid.Validator, logger arbor.ILogger) *Mapper {
	return &Mapper{
		validator: validator,
		extractor: transform.NewLinkExtractor(logger),
		client:    &http.Client{Timeout: 20 * time.Second},
		logger:    logger,
	}
}

// Map returns the discovered, scoped, deduped link list for req, capped at
// req.Limit (default 100).
func (m *Mapper) Map(ctx context.Context, req Request) ([]string, error) {
	seedURL, err := m.validator.ValidateForMap(req.URL)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	mapCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var links []string
	links = append(links, crawl.LoadSitemap(mapCtx, m.client, sitemapURLFor(seedURL))...)

	if !req.SitemapOnly {
		if pageLinks, err := m.fetchPageLinks(mapCtx, seedURL); err != nil {
			m.logger.Warn().Err(err).Str("url", seedURL).Msg("mapper: page fetch failed, falling back to sitemap only")
		} else {
			links = append(links, pageLinks...)
		}
	}

	links = append(links, seedURL)
	links = urlvalid.RemoveDuplicateUrls(links)
	links = m.filterScope(seedURL, links, req)

	if len(links) > limit {
		links = links[:limit]
	}
	return links, nil
}

func (m *Mapper) fetchPageLinks(ctx context.Context, seedURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seedURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil || len(buf) > 5*1024*1024 {
			break
		}
	}

	return m.extractor.Extract(string(buf), seedURL)
}

func (m *Mapper) filterScope(seedURL string, links []string, req Request) []string {
	out := make([]string, 0, len(links))
	for _, link := range links {
		if req.IncludeSubdomains {
			if !urlvalid.IsSubdomainOf(link, seedURL) {
				continue
			}
		} else if !urlvalid.IsSameRegistrableDomain(link, seedURL) {
			continue
		}
		if req.Search != "" && !strings.Contains(strings.ToLower(link), strings.ToLower(req.Search)) {
			continue
		}
		out = append(out, link)
	}
	return out
}

func sitemapURLFor(seedURL string) string {
	return strings.TrimSuffix(seedURL, "/") + "/sitemap.xml"
}
