package scrape

import (
	"net/url"
	"regexp"
	"strings"
)

// googleDocURLPattern matches Google Docs/Sheets/Slides share URLs of the
// form docs.google.com/{document|presentation|spreadsheets}/d/{id}/...
var googleDocURLPattern = regexp.MustCompile(`^https://docs\.google\.com/(document|presentation|spreadsheets)/d/([^/]+)`)

// rewriteURL applies the §4.E "Setup" URL rewrite table: Google Docs/Slides
// share URLs become export-as-PDF URLs so the pdf-parser engine can handle
// them directly instead of racing the live document editor UI.
func rewriteURL(rawURL string) string {
	m := googleDocURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	kind, id := m[1], m[2]
	switch kind {
	case "document":
		return "https://docs.google.com/document/d/" + id + "/export?format=pdf"
	case "presentation":
		return "https://docs.google.com/presentation/d/" + id + "/export/pdf"
	case "spreadsheets":
		return "https://docs.google.com/spreadsheets/d/" + id + "/export?format=pdf"
	default:
		return ""
	}
}

// hostOverride is one static per-host entry in the override table (§4.E
// "Per-host parameter overrides from a static table").
type hostOverride struct {
	forceEngine string
	blockAds    bool
}

// hostOverrides is a small built-in table of hosts known to be hostile to
// the default waterfall (heavy JS-gated content, aggressive bot detection).
// Grounded on the spec's own example ("force a specific engine on known
// hostile sites"); entries are illustrative defaults, not exhaustive, and
// can be widened by a deployment-specific config file later.
var hostOverrides = map[string]hostOverride{
	"twitter.com":  {forceEngine: "browser-cdp"},
	"x.com":        {forceEngine: "browser-cdp"},
	"linkedin.com": {forceEngine: "browser-cdp", blockAds: true},
}

// applyHostOverride returns the override for rawURL's host, if any.
func applyHostOverride(rawURL string) (hostOverride, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return hostOverride{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	o, ok := hostOverrides[host]
	return o, ok
}
