package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize_AlwaysStripsScriptAndStyle(t *testing.T) {
	html := `<html><body><script>evil()</script><style>.x{}</style><p>text</p></body></html>`

	out, err := Sanitize(html, nil, nil, false)
	require.NoError(t, err)
	assert.NotContains(t, out, "evil()")
	assert.NotContains(t, out, ".x{}")
	assert.Contains(t, out, "text")
}

func TestSanitize_OnlyMainContentDropsNavAndFooter(t *testing.T) {
	html := `<body><nav>menu</nav><main>article</main><footer>copy</footer></body>`

	out, err := Sanitize(html, nil, nil, true)
	require.NoError(t, err)
	assert.NotContains(t, out, "menu")
	assert.NotContains(t, out, "copy")
	assert.Contains(t, out, "article")
}

func TestSanitize_ForceIncludeSelectorSurvivesMainContentFilter(t *testing.T) {
	html := `<body><aside id="main">kept</aside></body>`

	out, err := Sanitize(html, nil, nil, true)
	require.NoError(t, err)
	assert.Contains(t, out, "kept")
}

func TestSanitize_ExcludeTagsMatchesSubstringInClass(t *testing.T) {
	html := `<body><div class="ad-banner">ad</div><p>keep</p></body>`

	out, err := Sanitize(html, nil, []string{"*ad*"}, false)
	require.NoError(t, err)
	assert.NotContains(t, out, "ad-banner")
	assert.Contains(t, out, "keep")
}

func TestSanitize_IncludeTagsBuildsNewRootFromMatches(t *testing.T) {
	html := `<body><div class="a">A</div><div class="b">B</div><p>P</p></body>`

	out, err := Sanitize(html, []string{".a", ".b"}, nil, false)
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "A") && strings.Contains(out, "B"))
	assert.NotContains(t, out, "P")
}
