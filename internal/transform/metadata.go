package transform

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// ExtractMetadata performs the single DOM pass described in §4.G: standard
// keys (title/description/language/keywords/robots) record their first
// value except description (concatenated on repeat, back-compat) and
// keywords/og:locale:alternate (always arrays); og:*, dc:*, and article:*
// keys are bucketed into their own maps; any other meta name/property is
// collected in Additional as a list of every value seen, so a tag that
// appears once is a one-element list rather than a plain string.
// <html lang> becomes Language.
func ExtractMetadata(html string, sourceURL string) models.DocumentMetadata {
	meta := models.DocumentMetadata{
		SourceURL:  sourceURL,
		OpenGraph:  make(map[string][]string),
		DublinCore: make(map[string][]string),
		Article:    make(map[string][]string),
		Additional: make(map[string][]string),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return meta
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta.Title = title
	}
	if lang, ok := doc.Find("html").First().Attr("lang"); ok && lang != "" {
		meta.Language = lang
	}

	descriptionParts := make([]string, 0, 1)

	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		key, _ := s.Attr("name")
		if key == "" {
			key, _ = s.Attr("property")
		}
		content, _ := s.Attr("content")
		if key == "" || content == "" {
			return
		}
		lowerKey := strings.ToLower(key)

		switch {
		case lowerKey == "description" || lowerKey == "og:description":
			descriptionParts = append(descriptionParts, content)
		case lowerKey == "title":
			if meta.Title == "" {
				meta.Title = content
			}
		case lowerKey == "keywords":
			meta.Keywords = append(meta.Keywords, splitCommaList(content)...)
		case lowerKey == "robots":
			if meta.Robots == "" {
				meta.Robots = content
			}
		case strings.HasPrefix(lowerKey, "og:"):
			appendRepeated(meta.OpenGraph, strings.TrimPrefix(key, "og:"), content)
		case strings.HasPrefix(lowerKey, "dc."), strings.HasPrefix(lowerKey, "dc:"):
			appendRepeated(meta.DublinCore, key[3:], content)
		case strings.HasPrefix(lowerKey, "article:"):
			appendRepeated(meta.Article, strings.TrimPrefix(key, "article:"), content)
		default:
			appendRepeated(meta.Additional, key, content)
		}
	})

	if len(descriptionParts) > 0 {
		meta.Description = strings.Join(descriptionParts, ", ")
	}

	return meta
}

func appendRepeated(bucket map[string][]string, key, value string) {
	bucket[key] = append(bucket[key], value)
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
