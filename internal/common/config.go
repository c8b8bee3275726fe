package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/interfaces"
)

// Config represents the application configuration (§6 "[AMBIENT] Config
// surface ... follows internal/common/config.go's layered default → file →
// env → flag model").
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production" - controls test URL validation
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	Crawler     CrawlerConfig `toml:"crawler"`
	Webhook     WebhookConfig `toml:"webhook"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Claude      ClaudeConfig  `toml:"claude"`
	LLM         LLMConfig     `toml:"llm"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger  BadgerConfig  `toml:"badger"`
	EnvFile string        `toml:"env_file"` // optional .env file loaded into the KV store at startup
	Keys    KeysDirConfig `toml:"keys"`     // optional directory of TOML key/value files loaded at startup
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// CrawlerConfig holds the scrape/crawl engine's operational defaults (§5,
// §4.A, §4.B): the fields that aren't per-request ScrapeOptions/
// CrawlerOptions but instead shape the whole running instance.
type CrawlerConfig struct {
	UserAgent          string        `toml:"user_agent"`           // Sent by every engine and by robots.txt fetches
	RequestTimeout     time.Duration `toml:"request_timeout"`      // Timeout of the browser pool's launch responsiveness check; the scrape path does not read it
	MaxBodySize        int           `toml:"max_body_size"`        // Maximum response body size in bytes; loaded from config, not read by any engine
	RespectRobotsTxt   bool          `toml:"respect_robots_txt"`   // Shown in the startup banner only; crawls honor robots.txt unless a job sets IgnoreRobotsTxt (§4.B)
	RobotsCacheTTL     time.Duration `toml:"robots_cache_ttl"`     // How long a fetched robots.txt stays cached (§4.B)
	MaxJobConcurrency  int           `toml:"max_job_concurrency"`  // Per-crawl-job concurrent scrape bound (§5, internal/crawl.Coordinator)
	MaxGlobalJobs      int           `toml:"max_global_jobs"`      // Reported as `/v1/concurrency-check`'s maxConcurrency (§6)
	Blocklist          []string      `toml:"blocklist"`            // Hostnames/suffixes the URL Validator rejects outright (§4.A)
	QuickCrawlMaxDepth int           `toml:"quick_crawl_max_depth"` // CrawlerOptions.Quick profile depth (SPEC_FULL §9)
	QuickCrawlMaxPages int           `toml:"quick_crawl_max_pages"` // CrawlerOptions.Quick profile page limit (SPEC_FULL §9)
	RobotsRefreshCron  string        `toml:"robots_refresh_cron"`   // robfig/cron expression for proactively refreshing cached robots.txt entries (SPEC_FULL §4.B)
}

// WebhookConfig holds the Job Adapter's webhook delivery tuning (§4.L).
type WebhookConfig struct {
	MaxAttempts         int           `toml:"max_attempts"`
	InitialBackoff      time.Duration `toml:"initial_backoff"`
	MaxBackoff          time.Duration `toml:"max_backoff"`
	BackoffMultiplier   float64       `toml:"backoff_multiplier"`
}

// GeminiConfig contains Google Gemini API configuration for the JSON
// Extractor (§4.J) when LLM.DefaultProvider == "gemini".
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Anthropic Claude API configuration for the JSON
// Extractor (§4.J) when LLM.DefaultProvider == "claude".
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	RateLimit   string  `toml:"rate_limit"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig contains unified configuration for the JSON Extractor's provider
// choice (§4.J).
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"`
}

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode - allows test URLs
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Crawler: CrawlerConfig{
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:     30 * time.Second,
			MaxBodySize:        10 * 1024 * 1024, // 10MB
			RespectRobotsTxt:   true,
			RobotsCacheTTL:     1 * time.Hour,
			MaxJobConcurrency:  4,
			MaxGlobalJobs:      10,
			Blocklist:          []string{"facebook.com", "instagram.com", "linkedin.com"},
			QuickCrawlMaxDepth: 2,
			QuickCrawlMaxPages: 10,
			RobotsRefreshCron:  "0 * * * *", // hourly
		},
		Webhook: WebhookConfig{
			MaxAttempts:       4,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Gemini: GeminiConfig{
			APIKey:      "", // User must provide API key (no fallback)
			Model:       "gemini-3-flash-preview",
			Timeout:     "5m",
			RateLimit:   "4s",
			Temperature: 0.2, // Low temperature for structured extraction
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.2,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderGemini,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// kvStorage can be nil for backward compatibility (replacement will be skipped)
func LoadFromFile(kvStorage interfaces.KeyValueStorage, path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles(kvStorage)
	}
	return LoadFromFiles(kvStorage, path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files. kvStorage can be nil to skip {key-name} replacement.
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if kvStorage != nil {
		ctx := context.Background()
		kvMap, err := kvStorage.GetAll(ctx)
		if err != nil {
			logger := arbor.NewLogger()
			logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		} else {
			logger := arbor.NewLogger()
			if err := ReplaceInStruct(config, kvMap, logger); err != nil {
				logger.Warn().Err(err).Msg("Failed to replace key references in config")
			} else {
				logger.Info().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
			}
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCRAPEFORGE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("SCRAPEFORGE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SCRAPEFORGE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("SCRAPEFORGE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("SCRAPEFORGE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("SCRAPEFORGE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("SCRAPEFORGE_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range splitString(output, ",") {
			trimmed := trimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if userAgent := os.Getenv("SCRAPEFORGE_CRAWLER_USER_AGENT"); userAgent != "" {
		config.Crawler.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("SCRAPEFORGE_CRAWLER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Crawler.RequestTimeout = rt
		}
	}
	if maxBodySize := os.Getenv("SCRAPEFORGE_CRAWLER_MAX_BODY_SIZE"); maxBodySize != "" {
		if mbs, err := strconv.Atoi(maxBodySize); err == nil {
			config.Crawler.MaxBodySize = mbs
		}
	}
	if respectRobots := os.Getenv("SCRAPEFORGE_CRAWLER_RESPECT_ROBOTS_TXT"); respectRobots != "" {
		if rr, err := strconv.ParseBool(respectRobots); err == nil {
			config.Crawler.RespectRobotsTxt = rr
		}
	}
	if maxJobConcurrency := os.Getenv("SCRAPEFORGE_CRAWLER_MAX_JOB_CONCURRENCY"); maxJobConcurrency != "" {
		if mjc, err := strconv.Atoi(maxJobConcurrency); err == nil {
			config.Crawler.MaxJobConcurrency = mjc
		}
	}
	if maxGlobalJobs := os.Getenv("SCRAPEFORGE_CRAWLER_MAX_GLOBAL_JOBS"); maxGlobalJobs != "" {
		if mgj, err := strconv.Atoi(maxGlobalJobs); err == nil {
			config.Crawler.MaxGlobalJobs = mgj
		}
	}
	if blocklist := os.Getenv("SCRAPEFORGE_CRAWLER_BLOCKLIST"); blocklist != "" {
		hosts := []string{}
		for _, h := range splitString(blocklist, ",") {
			trimmed := trimSpace(h)
			if trimmed != "" {
				hosts = append(hosts, trimmed)
			}
		}
		if len(hosts) > 0 {
			config.Crawler.Blocklist = hosts
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("SCRAPEFORGE_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("SCRAPEFORGE_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("SCRAPEFORGE_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}
	if rateLimit := os.Getenv("SCRAPEFORGE_GEMINI_RATE_LIMIT"); rateLimit != "" {
		config.Gemini.RateLimit = rateLimit
	}
	if temperature := os.Getenv("SCRAPEFORGE_GEMINI_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Gemini.Temperature = float32(t)
		}
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("SCRAPEFORGE_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // explicit prefix takes priority
	}
	if model := os.Getenv("SCRAPEFORGE_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("SCRAPEFORGE_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("SCRAPEFORGE_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}
	if rateLimit := os.Getenv("SCRAPEFORGE_CLAUDE_RATE_LIMIT"); rateLimit != "" {
		config.Claude.RateLimit = rateLimit
	}
	if temperature := os.Getenv("SCRAPEFORGE_CLAUDE_TEMPERATURE"); temperature != "" {
		if t, err := strconv.ParseFloat(temperature, 32); err == nil {
			config.Claude.Temperature = float32(t)
		}
	}

	if provider := os.Getenv("SCRAPEFORGE_LLM_DEFAULT_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ResolveAPIKey resolves an API key by name with environment variable
// priority. Resolution order: environment variables → KV store → config
// fallback → error. This ensures SCRAPEFORGE_* environment variables always
// take precedence (§6 "ResolveAPIKey (env > KV store > config fallback) is
// kept verbatim").
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"gemini_api_key":    {"SCRAPEFORGE_GEMINI_API_KEY", "GOOGLE_API_KEY"},
		"anthropic_api_key": {"SCRAPEFORGE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
		"claude_api_key":    {"SCRAPEFORGE_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	}

	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if kvStorage != nil {
		apiKey, err := kvStorage.Get(ctx, name)
		if err == nil && apiKey != "" {
			return apiKey, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment, KV store, or config", name)
}

// Helper functions for string manipulation
func splitString(s, sep string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if i+len(sep) <= len(s) && s[i:i+len(sep)] == sep {
			result = append(result, s[start:i])
			start = i + len(sep)
			i = start - 1
		}
	}
	result = append(result, s[start:])
	return result
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// AllowTestURLs returns true if test URLs (localhost, 127.0.0.1, etc.) are
// allowed. Test URLs are only allowed in development mode.
func (c *Config) AllowTestURLs() bool {
	return !c.IsProduction()
}

// DeepCloneConfig creates a deep copy of the Config struct, so a caller can
// change the copy without mutating the running config.
func DeepCloneConfig(c *Config) *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if len(c.Logging.Output) > 0 {
		clone.Logging.Output = make([]string, len(c.Logging.Output))
		copy(clone.Logging.Output, c.Logging.Output)
	}

	if len(c.Crawler.Blocklist) > 0 {
		clone.Crawler.Blocklist = make([]string, len(c.Crawler.Blocklist))
		copy(clone.Crawler.Blocklist, c.Crawler.Blocklist)
	}

	return &clone
}
