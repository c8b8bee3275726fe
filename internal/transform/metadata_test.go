package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMetadata_TitleAndLanguage(t *testing.T) {
	html := `<html lang="en"><head><title>Hello</title></head><body></body></html>`

	meta := ExtractMetadata(html, "https://example.com/")
	assert.Equal(t, "Hello", meta.Title)
	assert.Equal(t, "en", meta.Language)
}

func TestExtractMetadata_DescriptionConcatenatesRepeats(t *testing.T) {
	html := `<html><head>
		<meta name="description" content="first">
		<meta property="og:description" content="second">
	</head></html>`

	meta := ExtractMetadata(html, "https://example.com/")
	assert.Equal(t, "first, second", meta.Description)
}

func TestExtractMetadata_KeywordsAlwaysArray(t *testing.T) {
	html := `<html><head><meta name="keywords" content="a, b, c"></head></html>`

	meta := ExtractMetadata(html, "https://example.com/")
	assert.Equal(t, []string{"a", "b", "c"}, meta.Keywords)
}

func TestExtractMetadata_BucketsOpenGraphDublinCoreArticle(t *testing.T) {
	html := `<html><head>
		<meta property="og:title" content="OG Title">
		<meta name="DC.creator" content="Jane">
		<meta property="article:author" content="Jane Author">
	</head></html>`

	meta := ExtractMetadata(html, "https://example.com/")
	assert.Equal(t, []string{"OG Title"}, meta.OpenGraph["title"])
	assert.Equal(t, []string{"Jane"}, meta.DublinCore["creator"])
	assert.Equal(t, []string{"Jane Author"}, meta.Article["author"])
}

func TestExtractMetadata_UnknownKeyPromotedToArrayOnRepeat(t *testing.T) {
	html := `<html><head>
		<meta name="custom-tag" content="one">
		<meta name="custom-tag" content="two">
	</head></html>`

	meta := ExtractMetadata(html, "https://example.com/")
	assert.Equal(t, []string{"one", "two"}, meta.Additional["custom-tag"])
}
