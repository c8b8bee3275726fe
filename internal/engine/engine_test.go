package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

type stubEngine struct {
	descriptor models.EngineDescriptor
}

func (s stubEngine) Descriptor() models.EngineDescriptor { return s.descriptor }

func (s stubEngine) Scrape(ctx context.Context, meta models.Meta) (models.EngineScrapeResult, error) {
	return models.EngineScrapeResult{Engine: s.descriptor.Name}, nil
}

func TestRegistry_GetReturnsRegisteredEngine(t *testing.T) {
	fetch := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineFetch}}
	r := NewRegistry(fetch)

	e, ok := r.Get(models.EngineFetch)
	require.True(t, ok)
	assert.Equal(t, models.EngineFetch, e.Descriptor().Name)

	_, ok = r.Get(models.EngineBrowserCDP)
	assert.False(t, ok)
}

func TestBuildFallbackList_SortsByDescendingQuality(t *testing.T) {
	low := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineFetch, Quality: 50, SupportedFlags: models.NewFeatureSet()}}
	high := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineBrowserCDP, Quality: 90, SupportedFlags: models.NewFeatureSet()}}
	r := NewRegistry(low, high)

	entries := r.BuildFallbackList(models.Meta{Options: models.ScrapeOptions{}})

	require.Len(t, entries, 2)
	assert.Equal(t, models.EngineBrowserCDP, entries[0].Engine.Descriptor().Name)
	assert.Equal(t, models.EngineFetch, entries[1].Engine.Descriptor().Name)
}

func TestBuildFallbackList_ExcludesIndexLookupEngines(t *testing.T) {
	fetch := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineFetch, Quality: 50}}
	index := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineIndex, Quality: 100, IsIndexLookup: true}}
	r := NewRegistry(fetch, index)

	entries := r.BuildFallbackList(models.Meta{})

	require.Len(t, entries, 1)
	assert.Equal(t, models.EngineFetch, entries[0].Engine.Descriptor().Name)
}

func TestBuildFallbackList_ForceEngineShortCircuits(t *testing.T) {
	fetch := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineFetch, Quality: 50}}
	browser := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineBrowserCDP, Quality: 90}}
	r := NewRegistry(fetch, browser)

	entries := r.BuildFallbackList(models.Meta{Options: models.ScrapeOptions{ForceEngine: string(models.EngineFetch)}})

	require.Len(t, entries, 1)
	assert.Equal(t, models.EngineFetch, entries[0].Engine.Descriptor().Name)
}

func TestBuildFallbackList_ForceEngineUnknownReturnsNil(t *testing.T) {
	fetch := stubEngine{descriptor: models.EngineDescriptor{Name: models.EngineFetch, Quality: 50}}
	r := NewRegistry(fetch)

	entries := r.BuildFallbackList(models.Meta{Options: models.ScrapeOptions{ForceEngine: "nonexistent"}})
	assert.Nil(t, entries)
}

func TestBuildFallbackList_DegradedEngineStillQualifies(t *testing.T) {
	partial := stubEngine{descriptor: models.EngineDescriptor{
		Name:                models.EngineFetch,
		Quality:             50,
		SupportedFlags:      models.NewFeatureSet(),
		UnsupportedFlagCost: 10,
	}}
	r := NewRegistry(partial)

	entries := r.BuildFallbackList(models.Meta{FeatureFlags: models.NewFeatureSet(models.FeatureScreenshot)})

	require.Len(t, entries, 1)
	assert.Equal(t, []models.FeatureFlag{models.FeatureScreenshot}, entries[0].UnsupportedFeatures)
}
