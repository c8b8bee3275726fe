// Package scrape implements the Scrape Orchestrator (spec §4.E): the
// central algorithm that builds an engine fallback list, races engines in
// a waterfall, renegotiates feature flags on recoverable errors, and feeds
// the winning result into the transformer pipeline.
package scrape

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/abort"
	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/common"
	"github.com/wayfarer-labs/scrapeforge/internal/engine"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/transform"
)

// Pipeline is the narrow slice of transform.Pipeline the orchestrator
// needs, kept as a local interface for testability.
type Pipeline interface {
	Run(ctx context.Context, meta models.Meta, doc models.Document) (models.Document, error)
}

var _ Pipeline = (*transform.Pipeline)(nil)

// Orchestrator runs one scrape end to end: Setup, the outer
// feature-renegotiation loop, the engine waterfall, and the transformer
// pipeline.
type Orchestrator struct {
	registry *engine.Registry
	pipeline Pipeline
	logger   arbor.ILogger
}

// NewOrchestrator builds an Orchestrator over registry (the engine catalog)
// and pipeline (the transformer pipeline run on a winning result).
func NewOrchestrator(registry *engine.Registry, pipeline Pipeline, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{registry: registry, pipeline: pipeline, logger: logger}
}

// maxOuterIterations bounds the feature-renegotiation loop so a pathological
// AddFeature/RemoveFeature cycle can't spin forever; the spec doesn't name a
// bound explicitly but every individual rule (pdfPrefetch-once,
// stealthProxy-once) is itself one-shot, so a handful of iterations always
// suffices in practice.
const maxOuterIterations = 8

// Scrape runs the full orchestrator algorithm for one validated URL and
// returns the finished Document, or a terminal *apperr.Error.
func (o *Orchestrator) Scrape(ctx context.Context, rawURL string, opts models.ScrapeOptions) (models.Document, error) {
	meta := models.Meta{
		ID:           uuid.NewString(),
		URL:          rawURL,
		Options:      opts,
		FeatureFlags: opts.DeriveFeatureFlags(),
		CostTracking: &models.CostTracker{},
		StartedAt:    time.Now(),
	}

	o.logger.Debug().Str("id", meta.ID).Str("url", rawURL).Msg("scrape: starting")

	if rewritten := rewriteURL(rawURL); rewritten != "" {
		meta.RewrittenURL = rewritten
	}
	if override, ok := applyHostOverride(rawURL); ok {
		if override.forceEngine != "" && meta.Options.ForceEngine == "" {
			meta.Options.ForceEngine = override.forceEngine
		}
		if override.blockAds {
			meta.Options.BlockAds = true
		}
	}

	// AbortManager(external + scrape timeout), §4.E "Setup": the external
	// tier tracks caller disconnect, the scrape tier enforces
	// ScrapeOptions.timeout; both thread through the waterfall and pipeline
	// as a single cancellation signal.
	abortMgr, cancel := abort.NewExternal(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
	defer cancel()
	scrapeCtx, _ := abortMgr.AsSignal()

	var result models.EngineScrapeResult
	var unsupported []models.FeatureFlag
	var err error

	for i := 0; i < maxOuterIterations; i++ {
		fallbackList := o.registry.BuildFallbackList(meta)
		result, unsupported, err = runWaterfall(scrapeCtx, abortMgr, meta, fallbackList, o.logger)
		if err == nil {
			break
		}

		kind, _ := apperr.KindOf(err)
		e, _ := apperr.As(err)
		switch kind {
		case apperr.KindAddFeature:
			added := featureFlagsFromDetails(e)
			meta.FeatureFlags = meta.FeatureFlags.Union(models.NewFeatureSet(added...))
			if e != nil {
				if prefetch, ok := e.Details["pdfPrefetch"].([]byte); ok {
					meta.PDFPrefetch = prefetch
				}
			}
			o.logger.Debug().Str("id", meta.ID).Int("iteration", i).Msg("scrape: renegotiating, feature added")
			if meta.Options.ForceEngine != "" {
				return models.Document{}, err
			}
			continue

		case apperr.KindRemoveFeature:
			removed := featureFlagsFromDetails(e)
			meta.FeatureFlags = meta.FeatureFlags.Difference(models.NewFeatureSet(removed...))
			o.logger.Debug().Str("id", meta.ID).Int("iteration", i).Msg("scrape: renegotiating, feature removed")
			continue

		case apperr.KindPDFAntibot:
			if meta.PDFPrefetch != nil {
				return models.Document{}, err
			}
			meta.FeatureFlags = meta.FeatureFlags.Difference(models.NewFeatureSet(models.FeaturePDF))
			o.logger.Debug().Str("id", meta.ID).Msg("scrape: pdf antibot, retrying without pdf feature")
			continue

		default:
			o.logger.Warn().Str("id", meta.ID).Str("url", rawURL).Err(err).Msg("scrape: terminal engine error")
			return models.Document{}, err
		}
	}
	if err != nil {
		return models.Document{}, err
	}

	doc := models.Document{
		ID:      common.NewDocumentID(),
		RawHTML: result.RawHTML,
		Metadata: models.DocumentMetadata{
			SourceURL:  rawURL,
			URL:        result.FinalURL,
			StatusCode: result.StatusCode,
			NumPages:   result.NumPages,
			ProxyUsed:  meta.Options.Proxy,
		},
		Screenshot: result.Screenshot,
		Actions:    result.ActionResults,
	}
	if doc.Metadata.URL == "" {
		doc.Metadata.URL = meta.EffectiveURL()
	}

	doc, err = o.pipeline.Run(scrapeCtx, meta, doc)
	if err != nil {
		return models.Document{}, err
	}

	if len(unsupported) > 0 {
		doc = doc.WithWarning(unsupportedFeaturesWarning(unsupported))
	}
	o.logger.Info().Str("id", meta.ID).Str("engine", string(result.Engine)).Int("status", result.StatusCode).Msg("scrape: completed")
	return doc, nil
}

func featureFlagsFromDetails(e *apperr.Error) []models.FeatureFlag {
	if e == nil || e.Details == nil {
		return nil
	}
	raw, ok := e.Details["flags"].([]models.FeatureFlag)
	if !ok {
		return nil
	}
	return raw
}

func unsupportedFeaturesWarning(flags []models.FeatureFlag) string {
	msg := "winning engine does not fully support: "
	for i, f := range flags {
		if i > 0 {
			msg += ", "
		}
		msg += string(f)
	}
	return msg
}
