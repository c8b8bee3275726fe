package engine

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// DocumentIndex is the read-only lookup the "index"/"index;documents"
// engines query instead of performing a live fetch. Implemented by the
// badgerhold-backed store in internal/storage/badger.
type DocumentIndex interface {
	Lookup(ctx context.Context, url string) (models.Document, bool, error)
}

// IndexEngine never fetches live; it answers from a previously-crawled
// document index (§2 engine list: "index", "index;documents"). withDocuments
// selects which cached body is returned: the raw HTML when set, the cleaned
// HTML otherwise.
type IndexEngine struct {
	name          models.EngineName
	index         DocumentIndex
	withDocuments bool
	logger        arbor.ILogger
}

// NewIndexEngine builds an IndexEngine. Pass models.EngineIndexDocuments to
// get the cached raw HTML, models.EngineIndex to get the cached cleaned HTML.
func NewIndexEngine(name models.EngineName, index DocumentIndex, logger arbor.ILogger) *IndexEngine {
	return &IndexEngine{
		name:          name,
		index:         index,
		withDocuments: name == models.EngineIndexDocuments,
		logger:        logger,
	}
}

// Descriptor implements Engine. IsIndexLookup keeps it out of the default
// waterfall (§4.C) — it is only consulted when explicitly requested.
func (e *IndexEngine) Descriptor() models.EngineDescriptor {
	return models.EngineDescriptor{
		Name:                e.name,
		SupportedFlags:      models.NewFeatureSet(),
		UnsupportedFlagCost: 100,
		Quality:             30,
		TypicalTimeMS:       50,
		MaxReasonableTimeMS: 500,
		IsIndexLookup:       true,
	}
}

// Scrape implements Engine, returning KindIndexMiss when the URL has no
// cached entry so the waterfall can fall through to a live engine.
func (e *IndexEngine) Scrape(ctx context.Context, meta models.Meta) (models.EngineScrapeResult, error) {
	doc, found, err := e.index.Lookup(ctx, meta.EffectiveURL())
	if err != nil {
		return models.EngineScrapeResult{Engine: e.name}, apperr.Wrap(apperr.KindEngineError, "index lookup failed", err)
	}
	if !found {
		return models.EngineScrapeResult{Engine: e.name}, apperr.New(apperr.KindIndexMiss, "no indexed document for url")
	}

	result := models.EngineScrapeResult{
		Engine:     e.name,
		StatusCode: 200,
		FinalURL:   meta.EffectiveURL(),
	}
	if e.withDocuments {
		result.RawHTML = doc.RawHTML
	} else {
		result.RawHTML = doc.HTML
	}
	return result, nil
}
