package scrape

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/abort"
	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/engine"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// engineOutcome is one engine attempt's result, delivered over the shared
// results channel so the waterfall can select across all in-flight attempts
// without a channel per engine.
type engineOutcome struct {
	entry  engine.FallbackEntry
	result models.EngineScrapeResult
	err    error
}

// runWaterfall races the ordered fallbackList per §4.E "Engine waterfall".
// It returns the first accepted result, or a terminal error if one engine
// reports a non-recoverable failure, or KindNoEnginesLeft once every engine
// has been tried (or failed to even launch) without an acceptable result.
func runWaterfall(ctx context.Context, abortMgr *abort.Manager, meta models.Meta, fallbackList []engine.FallbackEntry, logger arbor.ILogger) (models.EngineScrapeResult, []models.FeatureFlag, error) {
	if len(fallbackList) == 0 {
		return models.EngineScrapeResult{}, nil, apperr.New(apperr.KindNoEnginesLeft, "no engines available for this scrape")
	}

	// Child(...) adds one engine-tier instance to the abort stack: engines
	// race under snipeCtx, and cancelSnipe fires that tier alone (not the
	// scrape/external tiers) once a winner is accepted (§4.D "child(...)").
	snipeMgr, cancelSnipe := abortMgr.Child(context.Background())
	snipeCtx, _ := snipeMgr.AsSignal()
	defer cancelSnipe()

	remaining := append([]engine.FallbackEntry(nil), fallbackList...)
	results := make(chan engineOutcome, len(fallbackList))
	inFlight := 0

	launch := func(entry engine.FallbackEntry) {
		inFlight++
		logger.Debug().Str("id", meta.ID).Str("engine", string(entry.Engine.Descriptor().Name)).Msg("waterfall: launching engine")
		go func() {
			res, err := entry.Engine.Scrape(snipeCtx, meta)
			select {
			case results <- engineOutcome{entry: entry, result: res, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	hasActionsOrJSON := len(meta.Options.Actions) > 0 || meta.Options.HasFormat(models.FormatJSON) || meta.Options.HasFormat(models.FormatExtract)

	for len(remaining) > 0 || inFlight > 0 {
		var timer <-chan time.Time
		if len(remaining) > 0 {
			entry := remaining[0]
			remaining = remaining[1:]
			interval := waterfallInterval(meta.Options.TimeoutMS, len(remaining)+1, hasActionsOrJSON)
			launch(entry)
			timer = time.After(interval)
		}

		select {
		case <-ctx.Done():
			return models.EngineScrapeResult{}, nil, apperr.Wrap(apperr.KindScrapeTimeout, "scrape aborted", ctx.Err())

		case outcome := <-results:
			inFlight--
			engineName := string(outcome.entry.Engine.Descriptor().Name)
			if outcome.err == nil && needsProxyUpgrade(meta, outcome.result) {
				logger.Info().Str("id", meta.ID).Str("engine", engineName).Int("status", outcome.result.StatusCode).Msg("waterfall: upgrading to stealth proxy")
				cancelSnipe()
				return models.EngineScrapeResult{}, nil, apperr.New(apperr.KindAddFeature, "upgrading to stealth proxy after blocked response").
					WithDetails(map[string]interface{}{"flags": []models.FeatureFlag{models.FeatureStealthProxy}})
			}
			if outcome.err == nil && accepted(outcome.result) {
				logger.Debug().Str("id", meta.ID).Str("engine", engineName).Msg("waterfall: accepted")
				cancelSnipe()
				return outcome.result, outcome.entry.UnsupportedFeatures, nil
			}
			if outcome.err == nil {
				// Accepted check failed but no error: an empty 2xx body.
				continue
			}
			if apperr.IsEngineRecoverable(outcome.err) {
				logger.Debug().Str("id", meta.ID).Str("engine", engineName).Err(outcome.err).Msg("waterfall: engine recoverable error, trying next")
				if len(remaining) == 0 && inFlight == 0 {
					return models.EngineScrapeResult{}, nil, apperr.New(apperr.KindNoEnginesLeft, "all engines exhausted without an acceptable result")
				}
				continue
			}
			// Any other kind (AddFeature/RemoveFeature/SiteError/SSL/DNS/
			// Action/UnsupportedFile/PDFAntibot/PDFInsufficientTime/
			// LLMRefusal/...) is terminal: propagate immediately, sniping
			// the rest of the waterfall.
			logger.Warn().Str("id", meta.ID).Str("engine", engineName).Err(outcome.err).Msg("waterfall: terminal engine error")
			cancelSnipe()
			return models.EngineScrapeResult{}, nil, outcome.err

		case <-timer:
			// Waterfall interval expired before any in-flight engine
			// settled; loop around to launch the next one. Already-running
			// attempts keep running.
			continue
		}
	}

	return models.EngineScrapeResult{}, nil, apperr.New(apperr.KindNoEnginesLeft, "no engines available for this scrape")
}

// waterfallInterval computes the per-launch stagger window (§4.E):
// options.timeout/min(remainingCount,2) when a caller timeout is set,
// else 300s (actions/json formats) or 120s, divided the same way.
func waterfallInterval(timeoutMS int, remainingCount int, hasActionsOrJSON bool) time.Duration {
	divisor := remainingCount
	if divisor > 2 {
		divisor = 2
	}
	if divisor < 1 {
		divisor = 1
	}
	if timeoutMS > 0 {
		return time.Duration(timeoutMS) * time.Millisecond / time.Duration(divisor)
	}
	if hasActionsOrJSON {
		return 300000 * time.Millisecond / time.Duration(divisor)
	}
	return 120000 * time.Millisecond / time.Duration(divisor)
}

// needsProxyUpgrade implements §4.E's proxy-upgrade rule: a blocked-looking
// status with proxy=="auto" and no stealthProxy flag yet triggers a
// restart with the widened flag set, rather than accepting the blocked
// response as-is.
func needsProxyUpgrade(meta models.Meta, res models.EngineScrapeResult) bool {
	if meta.Options.Proxy != "auto" {
		return false
	}
	if meta.FeatureFlags.Has(models.FeatureStealthProxy) {
		return false
	}
	switch res.StatusCode {
	case 401, 403, 429:
		return true
	default:
		return false
	}
}

// accepted implements §4.E's acceptance predicate: either the engine
// produced non-empty markdown-able content, or it returned a non-2xx/304
// status (a legitimate short-bodied outcome rather than a suspect empty
// 2xx). Markdown itself isn't derived yet at this point in the pipeline, so
// RawHTML/PDFBytes length stands in for "content was returned".
func accepted(res models.EngineScrapeResult) bool {
	if len(res.RawHTML) > 0 || len(res.PDFBytes) > 0 {
		return true
	}
	if res.StatusCode != 0 && (res.StatusCode < 200 || res.StatusCode > 299) && res.StatusCode != 304 {
		return true
	}
	return false
}
