package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

type stubIndex struct {
	docs map[string]models.Document
}

func (s stubIndex) Lookup(ctx context.Context, url string) (models.Document, bool, error) {
	doc, ok := s.docs[url]
	return doc, ok, nil
}

func TestIndexEngine_MetadataOnlyReturnsCleanHTML(t *testing.T) {
	idx := stubIndex{docs: map[string]models.Document{
		"https://example.com/a": {HTML: "clean", RawHTML: "raw"},
	}}
	e := NewIndexEngine(models.EngineIndex, idx, arbor.NewLogger())

	result, err := e.Scrape(t.Context(), models.Meta{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, "clean", result.RawHTML)
	assert.Equal(t, 200, result.StatusCode)
}

func TestIndexEngine_WithDocumentsReturnsRawHTML(t *testing.T) {
	idx := stubIndex{docs: map[string]models.Document{
		"https://example.com/a": {HTML: "clean", RawHTML: "raw"},
	}}
	e := NewIndexEngine(models.EngineIndexDocuments, idx, arbor.NewLogger())

	result, err := e.Scrape(t.Context(), models.Meta{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, "raw", result.RawHTML)
}

func TestIndexEngine_MissReturnsIndexMiss(t *testing.T) {
	idx := stubIndex{docs: map[string]models.Document{}}
	e := NewIndexEngine(models.EngineIndex, idx, arbor.NewLogger())

	_, err := e.Scrape(t.Context(), models.Meta{URL: "https://example.com/missing"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindIndexMiss))
}

func TestIndexEngine_Descriptor_IsIndexLookup(t *testing.T) {
	e := NewIndexEngine(models.EngineIndex, stubIndex{}, arbor.NewLogger())
	assert.True(t, e.Descriptor().IsIndexLookup)
}
