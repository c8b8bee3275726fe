package transform

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// alwaysStrippedTags are removed regardless of options (§4.H).
var alwaysStrippedTags = []string{"script", "style", "noscript", "meta", "head"}

// mainContentDenylist is removed when onlyMainContent is set, unless the
// subtree contains a forceInclude selector (§4.H).
var mainContentDenylist = []string{
	"header", "footer", "nav", "aside",
	".ad", ".ads", ".advertisement", ".modal", ".popup", ".sidebar", ".cookie-banner",
}

// forceIncludeSelectors are never removed by the main-content heuristic even
// if they match the denylist, per §4.H.
var forceIncludeSelectors = []string{"#main"}

// Sanitize implements the HTML Sanitizer (§4.H): includeTags builds a new
// root from matched subtrees in selector order; otherwise always-stripped
// tags are removed, excludeTags are applied (supporting *substr* patterns
// against tag name, attribute values, and class), and onlyMainContent drops
// the denylist unless a subtree contains a forceInclude selector.
func Sanitize(html string, includeTags, excludeTags []string, onlyMainContent bool) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	if len(includeTags) > 0 {
		return sanitizeIncludeOnly(doc, includeTags), nil
	}

	for _, tag := range alwaysStrippedTags {
		doc.Find(tag).Remove()
	}

	for _, pattern := range excludeTags {
		removeMatching(doc.Selection, pattern)
	}

	if onlyMainContent {
		for _, sel := range mainContentDenylist {
			doc.Find(sel).Each(func(i int, s *goquery.Selection) {
				if containsForceInclude(s) {
					return
				}
				s.Remove()
			})
		}
	}

	out, err := doc.Find("body").Html()
	if err != nil || out == "" {
		return doc.Html()
	}
	return out, nil
}

func sanitizeIncludeOnly(doc *goquery.Document, includeTags []string) string {
	var b strings.Builder
	for _, selector := range includeTags {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			if h, err := goquery.OuterHtml(s); err == nil {
				b.WriteString(h)
			}
		})
	}
	return b.String()
}

func containsForceInclude(s *goquery.Selection) bool {
	for _, sel := range forceIncludeSelectors {
		if s.Is(sel) || s.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// removeMatching removes elements whose tag name, attribute values, or
// class list contain pattern as a substring (the "*substr*" rule in §4.H).
func removeMatching(root *goquery.Selection, pattern string) {
	pattern = strings.Trim(pattern, "*")
	pattern = strings.ToLower(pattern)
	if pattern == "" {
		return
	}
	root.Find("*").Each(func(i int, s *goquery.Selection) {
		node := s.Get(0)
		if node == nil {
			return
		}
		if strings.Contains(strings.ToLower(node.Data), pattern) {
			s.Remove()
			return
		}
		for _, attr := range node.Attr {
			if strings.Contains(strings.ToLower(attr.Val), pattern) {
				s.Remove()
				return
			}
		}
	})
}
