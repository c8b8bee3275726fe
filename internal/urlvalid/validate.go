// Package urlvalid implements the URL Validator (spec §4.A): normalize and
// validate a user-supplied URL string, reject unsupported schemes and
// blocklisted hosts, and expose the same-registrable-domain and
// duplicate-URL-collapsing helpers the crawl coordinator and link extractor
// depend on.
package urlvalid

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"golang.org/x/net/idna"
)

var schemePrefixRe = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)

// tldRe is a permissive last-label TLD check: at least one dot, final label
// is 2+ alphabetic characters. IDN hosts are handled separately via punycode.
var tldRe = regexp.MustCompile(`(?i)^.+\.[a-z]{2,}$`)

// DefaultBlocklist is the built-in social-media + policy denylist (§4.A).
// A blocklist passed to New (e.g. from config) replaces it rather than
// extending it.
var DefaultBlocklist = []string{
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"tiktok.com",
	"linkedin.com",
	"pinterest.com",
	"reddit.com",
}

// Validator validates and normalizes URLs against a blocklist.
type Validator struct {
	blocklist map[string]struct{}
}

// New builds a Validator with the given blocklist (hosts, bare domain form).
// Pass nil to use DefaultBlocklist.
func New(blocklist []string) *Validator {
	if blocklist == nil {
		blocklist = DefaultBlocklist
	}
	set := make(map[string]struct{}, len(blocklist))
	for _, h := range blocklist {
		set[strings.ToLower(h)] = struct{}{}
	}
	return &Validator{blocklist: set}
}

// Validate parses raw, prepending "http://" when no scheme is present,
// and enforces scheme/TLD/blocklist rules (§4.A).
func (v *Validator) Validate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.New(apperr.KindInvalidURL, "empty URL")
	}
	if !schemePrefixRe.MatchString(raw) {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidURL, "could not parse URL", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", apperr.New(apperr.KindUnsupportedProtocol, "scheme must be http or https, got "+u.Scheme)
	}
	u.Scheme = scheme

	host := u.Hostname()
	if host == "" {
		return "", apperr.New(apperr.KindInvalidURL, "missing host")
	}

	asciiHost, err := idna.ToASCII(strings.ToLower(host))
	if err != nil {
		// Not a valid IDN and not plain ASCII either.
		return "", apperr.Wrap(apperr.KindInvalidURL, "invalid host", err)
	}
	if !tldRe.MatchString(asciiHost) && !strings.HasPrefix(asciiHost, "xn--") && !isLocalHost(asciiHost) {
		return "", apperr.New(apperr.KindInvalidURL, "host has no valid TLD: "+host)
	}

	if v.isBlocked(asciiHost) {
		return "", apperr.New(apperr.KindBlocklistedURL, "host is blocklisted: "+host)
	}

	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func (v *Validator) isBlocked(asciiHost string) bool {
	for blocked := range v.blocklist {
		if asciiHost == blocked || strings.HasSuffix(asciiHost, "."+blocked) {
			return true
		}
	}
	return false
}

// ValidateForMap applies Validate then additionally strips trailing slash
// and query, per §4.A "for map variants".
func (v *Validator) ValidateForMap(raw string) (string, error) {
	validated, err := v.Validate(raw)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(validated)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInvalidURL, "could not re-parse validated URL", err)
	}
	u.RawQuery = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// registrableSuffixes is a small built-in public-suffix table covering the
// common multi-label TLDs; anything else falls back to "last two labels".
// A full public-suffix-list import was considered but none of the example
// repos in the pack pull one in, so this stays a minimal, documented
// approximation (see DESIGN.md).
var registrableSuffixes = map[string]struct{}{
	"co.uk": {}, "org.uk": {}, "ac.uk": {}, "gov.uk": {},
	"com.au": {}, "net.au": {}, "org.au": {},
	"co.nz": {}, "co.jp": {}, "co.in": {},
	"com.br": {}, "com.cn": {},
}

// registrableDomain returns the registrable domain (eTLD+1) for host.
func registrableDomain(host string) string {
	host = strings.ToLower(host)
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if len(labels) >= 3 {
		if _, ok := registrableSuffixes[lastTwo]; ok {
			return strings.Join(labels[len(labels)-3:], ".")
		}
	}
	return lastTwo
}

// IsSameRegistrableDomain reports whether a and b (full URLs or hosts)
// share a registrable domain (§4.A helper; used by the crawl coordinator's
// scope predicate item 3).
func IsSameRegistrableDomain(a, b string) bool {
	return registrableDomain(hostOf(a)) == registrableDomain(hostOf(b))
}

// IsSubdomainOf reports whether child's host is a (strict or equal)
// subdomain of parent's registrable domain.
func IsSubdomainOf(child, parent string) bool {
	ch, ph := hostOf(child), hostOf(parent)
	return registrableDomain(ch) == registrableDomain(ph)
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Hostname()
	}
	return raw
}

// RemoveDuplicateUrls collapses http<->https and www.<->bare variants,
// preferring https and non-www, and dedupes by normalized form while
// preserving first-seen order otherwise (§4.A). Idempotent:
// RemoveDuplicateUrls(RemoveDuplicateUrls(xs)) == RemoveDuplicateUrls(xs).
func RemoveDuplicateUrls(urls []string) []string {
	type candidate struct {
		normalized string
		original   string
	}
	best := make(map[string]candidate)
	order := make([]string, 0, len(urls))

	rank := func(u *url.URL) int {
		score := 0
		if u.Scheme == "https" {
			score += 2
		}
		if !strings.HasPrefix(u.Hostname(), "www.") {
			score += 1
		}
		return score
	}

	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		key := dedupeKey(u)
		c, exists := best[key]
		if !exists {
			order = append(order, key)
			best[key] = candidate{normalized: raw, original: raw}
			continue
		}
		existingURL, _ := url.Parse(c.normalized)
		if existingURL == nil || rank(u) > rank(existingURL) {
			best[key] = candidate{normalized: raw, original: raw}
		}
	}

	out := make([]string, 0, len(order))
	for _, key := range order {
		out = append(out, best[key].normalized)
	}
	return out
}

// dedupeKey strips scheme and a leading "www." so http/https and www/non-www
// variants of the same URL collapse to the same key.
func dedupeKey(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.Path, "/")

	var query string
	if u.RawQuery != "" {
		values := u.Query()
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strings.Join(values[k], ","))
		}
		query = strings.Join(pairs, "&")
	}
	return host + path + "?" + query
}

// Normalize canonicalizes a URL for frontier/dedup-set membership: lowercase
// scheme+host, fragment stripped, query params sorted. Grounded on the
// teacher's queue.go normalizeURL.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.RawQuery != "" {
		values := u.Query()
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		encoded := url.Values{}
		for _, k := range keys {
			encoded[k] = values[k]
		}
		u.RawQuery = encoded.Encode()
	}
	return u.String()
}
