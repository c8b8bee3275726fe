// -----------------------------------------------------------------------
// Last Modified: Wednesday, 5th November 2025 8:17:54 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/blob"
	"github.com/wayfarer-labs/scrapeforge/internal/common"
	"github.com/wayfarer-labs/scrapeforge/internal/crawl"
	"github.com/wayfarer-labs/scrapeforge/internal/engine"
	"github.com/wayfarer-labs/scrapeforge/internal/extract"
	"github.com/wayfarer-labs/scrapeforge/internal/handlers"
	"github.com/wayfarer-labs/scrapeforge/internal/jobqueue"
	"github.com/wayfarer-labs/scrapeforge/internal/mapper"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/robots"
	"github.com/wayfarer-labs/scrapeforge/internal/scrape"
	"github.com/wayfarer-labs/scrapeforge/internal/services/llm"
	"github.com/wayfarer-labs/scrapeforge/internal/storage/badger"
	"github.com/wayfarer-labs/scrapeforge/internal/transform"
	"github.com/wayfarer-labs/scrapeforge/internal/urlvalid"
	"github.com/wayfarer-labs/scrapeforge/internal/webhook"
)

// App is the composition root: it wires the Badger storage layer, the
// Engine Waterfall, the Transform Pipeline, the Job Adapter (jobqueue) and
// Crawl Coordinator, and the HTTP handlers that sit on top of them.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage      *badger.Manager
	JobQueue     *jobqueue.Manager
	Registry     *engine.Registry
	Pipeline     *transform.Pipeline
	Orchestrator *scrape.Orchestrator
	Coordinator  *crawl.Coordinator
	Validator    *urlvalid.Validator
	Robots       *robots.Policy
	RobotsCron   *robots.Scheduler
	Providers    *llm.ProviderFactory

	// HTTP handlers
	ScrapeHandler *handlers.ScrapeHandler
	MapHandler    *handlers.MapHandler
	CrawlHandler  *handlers.CrawlHandler
	APIHandler    *handlers.APIHandler
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badger.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Storage = storageManager

	// Optional startup-time KV seeding (§6 "[AMBIENT] Config surface"):
	// a .env file and/or a directory of TOML key/value files. The stored
	// values are read by ResolveAPIKey (the LLM provider keys); main passes
	// no KV store to LoadFromFiles, so its {key-name} replacement does not
	// see them.
	if cfg.Storage.EnvFile != "" {
		if err := storageManager.LoadEnvFile(context.Background(), cfg.Storage.EnvFile); err != nil {
			logger.Warn().Err(err).Str("file", cfg.Storage.EnvFile).Msg("failed to load env file")
		}
	}
	if cfg.Storage.Keys.Dir != "" {
		if err := storageManager.LoadVariablesFromFiles(context.Background(), cfg.Storage.Keys.Dir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Storage.Keys.Dir).Msg("failed to load keys directory")
		}
	}

	app.JobQueue = jobqueue.NewManager(storageManager.Store(), logger)

	app.Validator = urlvalid.New(cfg.Crawler.Blocklist)
	app.Robots = robots.New(logger, cfg.Crawler.UserAgent, false, cfg.Crawler.RobotsCacheTTL)

	robotsCron, err := robots.NewScheduler(app.Robots, logger, cfg.Crawler.RobotsRefreshCron)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize robots refresh scheduler: %w", err)
	}
	app.RobotsCron = robotsCron
	app.RobotsCron.Start()

	if err := app.initEngines(); err != nil {
		return nil, fmt.Errorf("failed to initialize engines: %w", err)
	}

	app.Providers = llm.NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, storageManager.KeyValueStorage(), logger)

	if err := app.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to initialize transform pipeline: %w", err)
	}

	app.Orchestrator = scrape.NewOrchestrator(app.Registry, app.Pipeline, logger)

	webhookClient := &http.Client{Timeout: 15 * time.Second}
	webhookEmitter := webhook.NewEmitter(webhookClient, webhook.RetryPolicy{
		MaxAttempts:       cfg.Webhook.MaxAttempts,
		InitialBackoff:    cfg.Webhook.InitialBackoff,
		MaxBackoff:        cfg.Webhook.MaxBackoff,
		BackoffMultiplier: cfg.Webhook.BackoffMultiplier,
	}, logger)

	app.Coordinator = crawl.NewCoordinator(
		app.Validator,
		app.Robots,
		app.Orchestrator,
		webhookEmitter,
		app.JobQueue,
		app.JobQueue,
		cfg.Crawler.MaxJobConcurrency,
		logger,
	)

	app.initHandlers()

	logger.Info().
		Str("environment", cfg.Environment).
		Int("max_job_concurrency", cfg.Crawler.MaxJobConcurrency).
		Msg("Application initialization complete")

	return app, nil
}

// initEngines builds the Engine Waterfall (§2, §4.C): the fetch, tls-client,
// PDF and browser engines are all registered, and a browser pool that fails
// to start fails initialization. The two index engines read from the
// Badger-backed document cache; they are left out of the default fallback
// list and only run when a scrape forces one of them.
func (a *App) initEngines() error {
	userAgent := a.Config.Crawler.UserAgent

	fetchEngine := engine.NewFetchEngine(models.EngineFetch, userAgent, false, a.Logger)
	tlsClientEngine := engine.NewFetchEngine(models.EngineTLSClient, userAgent, true, a.Logger)
	pdfEngine := engine.NewPDFEngine(a.Logger)

	browserEngine, err := engine.NewBrowserEngine(engine.ChromeDPPoolConfig{
		MaxInstances:       4,
		UserAgent:          userAgent,
		Headless:           true,
		DisableGPU:         true,
		NoSandbox:          true,
		JavaScriptWaitTime: 2 * time.Second,
		RequestTimeout:     a.Config.Crawler.RequestTimeout,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser engine: %w", err)
	}

	indexEngine := engine.NewIndexEngine(models.EngineIndex, a.Storage.DocumentIndex(), a.Logger)
	indexDocumentsEngine := engine.NewIndexEngine(models.EngineIndexDocuments, a.Storage.DocumentIndex(), a.Logger)

	a.Registry = engine.NewRegistry(
		fetchEngine,
		tlsClientEngine,
		browserEngine,
		pdfEngine,
		indexEngine,
		indexDocumentsEngine,
	)

	return nil
}

// initPipeline wires the Transform Pipeline (§4.D-G) with the filesystem
// blob store and the LLM extractor, both always set. A blob store that fails
// to initialize fails startup; an extraction with no usable provider key
// fails with the extractor's error.
func (a *App) initPipeline() error {
	blobStore, err := blob.NewStore(blob.DefaultConfig(), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	model := a.Providers.GetDefaultModel(a.Providers.DetectProvider(""))
	extractor := extract.NewExtractor(a.Providers, model, a.Logger)

	a.Pipeline = transform.NewPipeline(blobStore, extractor, a.Logger)
	return nil
}

// initHandlers initializes all HTTP handlers (§6).
func (a *App) initHandlers() {
	a.ScrapeHandler = handlers.NewScrapeHandler(a.Validator, a.Orchestrator, a.Logger)
	a.MapHandler = handlers.NewMapHandler(mapper.New(a.Validator, a.Logger), a.Logger)
	a.CrawlHandler = handlers.NewCrawlHandler(a.JobQueue, a.Coordinator, a.Validator, a.Config.Crawler.MaxGlobalJobs, a.Logger,
		a.Config.Crawler.QuickCrawlMaxDepth, a.Config.Crawler.QuickCrawlMaxPages)
	a.APIHandler = handlers.NewAPIHandler(a.Config)
}

// Close closes all application resources.
func (a *App) Close() error {
	a.Logger.Info().Msg("Flushing context logs")
	common.Stop()

	if a.RobotsCron != nil {
		a.RobotsCron.Stop()
	}

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}
