package crawl

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/robots"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
)

// ScopeDecision is the outcome of evaluating the scope predicate for one
// candidate URL (§4.K "Scope predicate"), with the specific rule that
// denied it (if any) for the job's robotsBlocked/debugging trail.
type ScopeDecision struct {
	Allowed bool
	Reason  string
}

// ScopePredicate implements §4.K's 8-rule allowed(childURL, parentURL, depth)
// check. Grounded on internal/services/crawler/filters.go's LinkFilter
// (include/exclude regex matching), generalized with the seed-domain,
// depth, backward-link, and robots checks the spec additionally requires.
type ScopePredicate struct {
	seedURL        *url.URL
	opts           models.CrawlerOptions
	includeRegexes []*regexp.Regexp
	excludeRegexes []*regexp.Regexp
	robotsPolicy   *robots.Policy
	seenNormalized map[string]bool
}

// NewScopePredicate compiles includePaths/excludePaths against seedURL and
// opts. Invalid regexes are skipped (and should be logged by the caller).
func NewScopePredicate(seedURL string, opts models.CrawlerOptions, robotsPolicy *robots.Policy) (*ScopePredicate, error) {
	parsed, err := url.Parse(seedURL)
	if err != nil {
		return nil, err
	}
	p := &ScopePredicate{
		seedURL:        parsed,
		opts:           opts,
		robotsPolicy:   robotsPolicy,
		seenNormalized: make(map[string]bool),
	}
	for _, pattern := range opts.IncludePaths {
		if re, err := regexp.Compile(pattern); err == nil {
			p.includeRegexes = append(p.includeRegexes, re)
		}
	}
	for _, pattern := range opts.ExcludePaths {
		if re, err := regexp.Compile(pattern); err == nil {
			p.excludeRegexes = append(p.excludeRegexes, re)
		}
	}
	return p, nil
}

// Allowed evaluates all 8 rules from §4.K in order, short-circuiting on the
// first failure so Reason always names the rule that rejected the URL.
func (p *ScopePredicate) Allowed(ctx context.Context, childURL string, depth, discoveryDepth int) ScopeDecision {
	if depth > p.opts.MaxDepth {
		return ScopeDecision{false, "exceeds maxDepth"}
	}
	if discoveryDepth > p.opts.MaxDiscoveryDepth {
		return ScopeDecision{false, "exceeds maxDiscoveryDepth"}
	}

	parsed, err := url.Parse(childURL)
	if err != nil {
		return ScopeDecision{false, "invalid URL"}
	}

	sameRegistrable := urlvalid.IsSameRegistrableDomain(parsed.Host, p.seedURL.Host)
	subdomainOK := p.opts.AllowSubdomains && urlvalid.IsSubdomainOf(parsed.Host, p.seedURL.Host)
	if !sameRegistrable && !subdomainOK && !p.opts.AllowExternalLinks {
		return ScopeDecision{false, "different registrable domain"}
	}

	if !p.opts.CrawlEntireDomain && !p.opts.AllowBackwardLinks && isBackwardLink(parsed.Path, p.seedURL.Path) {
		return ScopeDecision{false, "backward link"}
	}

	matchTarget := parsed.Path
	if p.opts.RegexOnFullURL {
		matchTarget = childURL
	}
	if len(p.includeRegexes) > 0 && !anyMatch(p.includeRegexes, matchTarget) {
		return ScopeDecision{false, "does not match includePaths"}
	}
	if anyMatch(p.excludeRegexes, matchTarget) {
		return ScopeDecision{false, "matches excludePaths"}
	}

	if !p.opts.IgnoreRobotsTxt && p.robotsPolicy != nil && !p.robotsPolicy.IsAllowed(ctx, childURL) {
		return ScopeDecision{false, "robots disallow"}
	}

	normalized := p.normalize(childURL)
	if p.seenNormalized[normalized] {
		return ScopeDecision{false, "already seen"}
	}
	if p.opts.DeduplicateSimilarURLs && p.seenSimilar(normalized) {
		return ScopeDecision{false, "similar URL already seen"}
	}

	return ScopeDecision{true, ""}
}

// MarkSeen records normalized as visited, for rule 8's dedup check on
// subsequently evaluated candidates.
func (p *ScopePredicate) MarkSeen(childURL string) {
	normalized := p.normalize(childURL)
	p.seenNormalized[normalized] = true
}

// normalize wraps urlvalid.Normalize, additionally stripping the query
// string entirely when ignoreQueryParameters is set (§4.K rule 8).
func (p *ScopePredicate) normalize(childURL string) string {
	normalized := urlvalid.Normalize(childURL)
	if !p.opts.IgnoreQueryParameters {
		return normalized
	}
	if u, err := url.Parse(normalized); err == nil {
		u.RawQuery = ""
		return u.String()
	}
	return normalized
}

// seenSimilar does a coarse fuzzy-dedup check (§4.K rule 8
// "deduplicateSimilarURLs"): strips a trailing slash before comparing,
// catching the common "/page" vs "/page/" variant without pulling in a
// similarity-scoring library. Query strings are compared as they are, so
// "?ref=x" variants of a seen URL are not treated as similar.
func (p *ScopePredicate) seenSimilar(normalized string) bool {
	fuzzy := strings.TrimSuffix(normalized, "/")
	for seen := range p.seenNormalized {
		if strings.TrimSuffix(seen, "/") == fuzzy {
			return true
		}
	}
	return false
}

// isBackwardLink reports whether childPath is a prefix-ancestor of
// seedPath, i.e. the child points "up" the seed's own path tree.
func isBackwardLink(childPath, seedPath string) bool {
	child := strings.Trim(childPath, "/")
	seed := strings.Trim(seedPath, "/")
	if child == "" || child == seed {
		return false
	}
	return strings.HasPrefix(seed, child+"/") || (seed != "" && child != seed && strings.HasPrefix(seed+"/", child+"/"))
}

func anyMatch(regexes []*regexp.Regexp, s string) bool {
	for _, re := range regexes {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
