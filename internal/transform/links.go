package transform

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
)

// LinkExtractor discovers and resolves anchor links per §4.I. Grounded on
// internal/services/crawler/link_extractor.go's resolveURL/dedupe approach,
// adapted to the spec's exact policy: resolve against <base href> (itself
// resolved against the document URL if relative), drop fragment-only hrefs,
// keep mailto: links, dedupe preserving first-seen order.
type LinkExtractor struct {
	logger arbor.ILogger
}

// NewLinkExtractor builds a LinkExtractor.
func NewLinkExtractor(logger arbor.ILogger) *LinkExtractor {
	return &LinkExtractor{logger: logger}
}

// Extract returns links in first-seen order, deduplicated.
func (le *LinkExtractor) Extract(html string, documentURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base := le.resolveBase(doc, documentURL)

	var links []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}

		resolved := href
		if strings.HasPrefix(href, "mailto:") {
			resolved = href // kept verbatim per §4.I, not resolved against base
		} else if parsed, err := url.Parse(href); err == nil {
			if parsed.IsAbs() {
				resolved = parsed.String()
			} else if base != nil {
				resolved = base.ResolveReference(parsed).String()
			} else {
				return
			}
		} else {
			return
		}

		if !seen[resolved] {
			seen[resolved] = true
			links = append(links, resolved)
		}
	})

	return links, nil
}

// resolveBase finds <base href>, resolving it against documentURL if the
// base href is itself relative (§4.I); falls back to documentURL.
func (le *LinkExtractor) resolveBase(doc *goquery.Document, documentURL string) *url.URL {
	docURL, err := url.Parse(documentURL)
	if err != nil {
		return nil
	}

	baseHref, ok := doc.Find("base[href]").First().Attr("href")
	if !ok || baseHref == "" {
		return docURL
	}
	baseURL, err := url.Parse(baseHref)
	if err != nil {
		return docURL
	}
	if baseURL.IsAbs() {
		return baseURL
	}
	return docURL.ResolveReference(baseURL)
}
