package engine

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// BrowserEngine implements Engine over a pooled ChromeDP headless browser,
// for the "browser-cdp" engine — the only engine that can honor
// waitFor/actions/JS-rendered pages.
type BrowserEngine struct {
	pool   *ChromeDPPool
	logger arbor.ILogger
}

// NewBrowserEngine builds and initializes a pooled browser engine.
func NewBrowserEngine(cfg ChromeDPPoolConfig, logger arbor.ILogger) (*BrowserEngine, error) {
	pool := NewChromeDPPool(cfg, logger)
	if err := pool.InitBrowserPool(cfg); err != nil {
		return nil, err
	}
	return &BrowserEngine{pool: pool, logger: logger}, nil
}

// Descriptor implements Engine.
func (b *BrowserEngine) Descriptor() models.EngineDescriptor {
	return models.EngineDescriptor{
		Name: models.EngineBrowserCDP,
		SupportedFlags: models.NewFeatureSet(
			models.FeatureActions,
			models.FeatureScreenshot,
			models.FeatureScreenshotFullPage,
			models.FeatureWaitFor,
			models.FeatureMobile,
			models.FeatureStealthProxy,
		),
		UnsupportedFlagCost: 40,
		Quality:             90,
		TypicalTimeMS:       8000,
		MaxReasonableTimeMS: 60000,
	}
}

// Scrape implements Engine, running the page's navigate/wait/actions plan
// inside a pooled browser context and returning the rendered HTML.
func (b *BrowserEngine) Scrape(ctx context.Context, meta models.Meta) (models.EngineScrapeResult, error) {
	start := time.Now()
	browserCtx, release, err := b.pool.GetBrowser()
	if err != nil {
		return models.EngineScrapeResult{Engine: models.EngineBrowserCDP}, apperr.Wrap(apperr.KindEngineError, "no browser available", err)
	}
	defer release()

	runCtx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	var html string
	var statusCode int
	tasks := chromedp.Tasks{
		chromedp.Navigate(meta.EffectiveURL()),
	}
	if meta.Options.WaitForMS > 0 {
		tasks = append(tasks, chromedp.Sleep(time.Duration(meta.Options.WaitForMS)*time.Millisecond))
	}
	tasks = append(tasks, runActions(meta.Options.Actions)...)
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	var screenshotBytes []byte
	if meta.FeatureFlags.Has(models.FeatureScreenshot) {
		fullPage := meta.FeatureFlags.Has(models.FeatureScreenshotFullPage)
		tasks = append(tasks, captureScreenshot(&screenshotBytes, fullPage))
	}

	if err := chromedp.Run(runCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return models.EngineScrapeResult{Engine: models.EngineBrowserCDP}, apperr.Wrap(apperr.KindEngineSniped, "browser engine aborted", ctx.Err())
		}
		return models.EngineScrapeResult{Engine: models.EngineBrowserCDP}, apperr.Wrap(apperr.KindSiteError, "browser failed to load page", err)
	}
	statusCode = 200 // chromedp does not surface the HTTP status directly; a failed Navigate already errored above

	result := models.EngineScrapeResult{
		Engine:     models.EngineBrowserCDP,
		StatusCode: statusCode,
		FinalURL:   meta.EffectiveURL(),
		RawHTML:    html,
		Duration:   time.Since(start),
	}
	if len(screenshotBytes) > 0 {
		result.Screenshot = encodeDataURI(screenshotBytes)
	}
	return result, nil
}

// Close releases all pooled browser instances.
func (b *BrowserEngine) Close() error {
	return b.pool.ShutdownBrowserPool()
}

func runActions(actions []models.Action) chromedp.Tasks {
	var tasks chromedp.Tasks
	for _, a := range actions {
		switch a.Type {
		case models.ActionClick:
			tasks = append(tasks, chromedp.Click(a.Selector, chromedp.NodeVisible))
		case models.ActionWrite:
			tasks = append(tasks, chromedp.SendKeys(a.Selector, a.Text))
		case models.ActionPress:
			tasks = append(tasks, chromedp.KeyEvent(a.Key))
		case models.ActionWait:
			tasks = append(tasks, chromedp.Sleep(time.Duration(a.Milliseconds)*time.Millisecond))
		case models.ActionScroll:
			tasks = append(tasks, chromedp.ScrollIntoView(a.Selector))
		case models.ActionExecuteJS:
			tasks = append(tasks, chromedp.Evaluate(a.Script, nil))
		}
	}
	return tasks
}

func captureScreenshot(buf *[]byte, fullPage bool) chromedp.Action {
	if fullPage {
		return chromedp.FullScreenshot(buf, 90)
	}
	return chromedp.CaptureScreenshot(buf)
}
