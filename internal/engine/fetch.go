package engine

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// contextAwareTransport wraps an http.RoundTripper so an in-flight colly
// request is cancelled the moment the abort-tier context is done.
// Grounded on html_scraper.go's contextAwareTransport.
type contextAwareTransport struct {
	base http.RoundTripper
	ctx  context.Context
}

func (t *contextAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-t.ctx.Done():
		return nil, t.ctx.Err()
	default:
	}
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// FetchEngine is the plain-HTTP engine backing both the "fetch" and
// "tls-client" Engine names. Grounded on the teacher's HTMLScraper
// (html_scraper.go), generalized from a crawl-job-scoped scraper into a
// single-shot Engine.Scrape call driven by models.Meta.
type FetchEngine struct {
	name      models.EngineName
	collector *colly.Collector
	logger    arbor.ILogger
	userAgent string
}

// NewFetchEngine builds a FetchEngine. tlsClient additionally rotates user
// agents and attaches a Referer, approximating a less-fingerprintable
// client for the "tls-client" variant.
func NewFetchEngine(name models.EngineName, userAgent string, tlsClient bool, logger arbor.ILogger) *FetchEngine {
	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.UserAgent(userAgent),
		colly.IgnoreRobotsTxt(), // robots enforcement lives in internal/robots, upstream of the waterfall
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(30 * time.Second)
	if tlsClient {
		extensions.RandomUserAgent(c)
		extensions.Referer(c)
	}
	return &FetchEngine{name: name, collector: c, logger: logger, userAgent: userAgent}
}

// Descriptor implements Engine.
func (f *FetchEngine) Descriptor() models.EngineDescriptor {
	quality, cost := 70, 10
	if f.name == models.EngineTLSClient {
		quality, cost = 75, 20 // higher evasion quality, pricier
	}
	return models.EngineDescriptor{
		Name: f.name,
		SupportedFlags: models.NewFeatureSet(
			models.FeatureLocation,
			models.FeatureSkipTLSVerification,
			models.FeatureFastMode,
			models.FeatureStealthProxy,
			models.FeatureDisableAdblock,
		),
		UnsupportedFlagCost: cost,
		Quality:             quality,
		TypicalTimeMS:       2000,
		MaxReasonableTimeMS: 15000,
	}
}

// Scrape implements Engine. It performs a single GET, returning raw HTML
// and status; markdown/links/metadata derivation happens later in the
// transformer pipeline (§4.F), not here — the engine's only job is to
// produce bytes plus status per §9 "Engine polymorphism".
func (f *FetchEngine) Scrape(ctx context.Context, meta models.Meta) (models.EngineScrapeResult, error) {
	start := time.Now()
	f.logger.Debug().Str("id", meta.ID).Str("engine", string(f.name)).Str("url", meta.EffectiveURL()).Msg("fetch: requesting")
	c := f.collector.Clone()

	baseTransport := http.DefaultTransport
	c.WithTransport(&contextAwareTransport{base: baseTransport, ctx: ctx})

	var result models.EngineScrapeResult
	result.Engine = f.name

	for k, v := range meta.Options.Headers {
		c.OnRequest(func(r *colly.Request) { r.Headers.Set(k, v) })
	}

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
		if r != nil {
			result.StatusCode = r.StatusCode
		}
	})
	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.RawHTML = string(r.Body)
		result.FinalURL = r.Request.URL.String()
	})

	url := meta.EffectiveURL()
	if err := c.Visit(url); err != nil {
		scrapeErr = err
	}
	c.Wait()
	result.Duration = time.Since(start)

	if ctx.Err() != nil {
		f.logger.Debug().Str("id", meta.ID).Str("engine", string(f.name)).Msg("fetch: sniped")
		return result, apperr.Wrap(apperr.KindEngineSniped, "engine context aborted", ctx.Err())
	}
	if scrapeErr != nil {
		if isDNSError(scrapeErr) {
			f.logger.Warn().Str("id", meta.ID).Str("engine", string(f.name)).Err(scrapeErr).Msg("fetch: dns resolution failed")
			return result, apperr.Wrap(apperr.KindDNSResolution, "dns resolution failed", scrapeErr)
		}
		f.logger.Warn().Str("id", meta.ID).Str("engine", string(f.name)).Err(scrapeErr).Msg("fetch: request failed")
		return result, apperr.Wrap(apperr.KindEngineError, fmt.Sprintf("%s engine request failed", f.name), scrapeErr)
	}
	if result.FinalURL == "" {
		result.FinalURL = url
	}
	f.logger.Debug().Str("id", meta.ID).Str("engine", string(f.name)).Int("status", result.StatusCode).Str("duration", result.Duration.String()).Msg("fetch: completed")
	return result, nil
}

func isDNSError(err error) bool {
	return strings.Contains(err.Error(), "no such host") || strings.Contains(err.Error(), "lookup")
}
