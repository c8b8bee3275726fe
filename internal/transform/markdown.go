package transform

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// skipToContentAnchor matches the boilerplate accessibility anchor emitted
// by many site templates ("Skip to Content", "Skip to main content", ...).
var skipToContentAnchor = regexp.MustCompile(`(?i)\[skip to (main )?content\]\([^)]*\)\n*`)

// linkTextNewline matches a newline inside a markdown link's text span,
// i.e. between the brackets of [...]. html-to-markdown can emit these when
// the source anchor's inline content spans multiple lines.
var linkTextNewline = regexp.MustCompile(`\[([^\]]*)\]`)

// ToMarkdown converts sanitized HTML to Markdown (§4.F step 2). baseURL
// resolves relative link/image targets during conversion. Multi-line link
// text has its newlines escaped so the markdown link span stays on one
// line, and "Skip to Content" accessibility anchors are stripped.
func ToMarkdown(html string, baseURL string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	converter := md.NewConverter(baseURL, true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", err
	}

	out = linkTextNewline.ReplaceAllStringFunc(out, func(match string) string {
		inner := match[1 : len(match)-1]
		escaped := strings.ReplaceAll(inner, "\n", "\\n")
		return "[" + escaped + "]"
	})
	out = skipToContentAnchor.ReplaceAllString(out, "")

	return strings.TrimSpace(out), nil
}
