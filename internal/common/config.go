package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Site        SiteConfig       `toml:"site"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Browser     BrowserConfig    `toml:"browser"`
	Extraction  ExtractionConfig `toml:"extraction"`
	Checkout    CheckoutConfig   `toml:"checkout"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Claude      ClaudeConfig     `toml:"claude"`
	Gemini      GeminiConfig     `toml:"gemini"`
	LLM         LLMConfig        `toml:"llm"`
}

// SiteConfig describes the single retail site the crawler targets
type SiteConfig struct {
	BaseURL      string        `toml:"base_url" validate:"required,url"`
	SearchPath   string        `toml:"search_path"`   // Path template for site search, e.g. "/search?q="
	UserAgent    string        `toml:"user_agent"`    // User agent presented to the site
	RequestDelay time.Duration `toml:"request_delay"` // Minimum delay between requests to the site
	RandomDelay  time.Duration `toml:"random_delay"`  // Random jitter added to request delay
	StaleAfter   time.Duration `toml:"stale_after"`   // Product documents older than this are refresh candidates

	// UpdateSchedule is the cron schedule for the stale product refresh
	// sweep. Empty disables the sweep.
	UpdateSchedule string `toml:"update_schedule"`
}

// SchedulerConfig controls the crawl task scheduler
type SchedulerConfig struct {
	MaxActiveTasks int           `toml:"max_active_tasks" validate:"gt=0"` // Concurrent task cap
	MaxRetries     int           `toml:"max_retries" validate:"gte=0"`     // Default per-task retry budget
	RetryBaseDelay time.Duration `toml:"retry_base_delay"`                 // First backoff step
	RetryMaxDelay  time.Duration `toml:"retry_max_delay"`                  // Backoff cap
	DequeueBackoff time.Duration `toml:"dequeue_backoff"`                  // Wait when the pool is saturated
	HistorySize    int           `toml:"history_size"`                     // Bounded completed/failed history
}

// BrowserConfig controls the chromedp browser pool
type BrowserConfig struct {
	MaxBrowsers        int           `toml:"max_browsers" validate:"gt=0"` // Browser instance cap
	MaxPages           int           `toml:"max_pages" validate:"gt=0"`    // Concurrent page cap across all browsers
	Headless           bool          `toml:"headless"`
	NoSandbox          bool          `toml:"no_sandbox"`
	NavigationTimeout  time.Duration `toml:"navigation_timeout"`
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"` // Time to wait for JavaScript to render
	ScreenshotDir      string        `toml:"screenshot_dir"`
}

// ExtractionConfig controls the content extraction pipeline
type ExtractionConfig struct {
	ChunkSize         int           `toml:"chunk_size" validate:"gt=0"` // Max characters per chunk
	MaxParallelChunks int           `toml:"max_parallel_chunks"`        // Chunks extracted concurrently per batch
	BatchDelay        time.Duration `toml:"batch_delay"`                // Delay between chunk batches
	ChunkRetries      int           `toml:"chunk_retries"`              // Per-chunk extraction attempts
	CacheTTL          time.Duration `toml:"cache_ttl"`                  // Staleness window for cached results
	MemoryCacheSize   int           `toml:"memory_cache_size"`          // LRU entries kept in memory
	ProbesFile        string        `toml:"probes_file"`                // YAML file with DOM fallback probe tables
	PurgeSchedule     string        `toml:"purge_schedule"`             // Cron schedule for cache purge, empty disables
}

// CheckoutConfig controls the checkout session engine
type CheckoutConfig struct {
	SessionExpiry   time.Duration `toml:"session_expiry"`   // Sessions idle longer than this expire
	CleanupSchedule string        `toml:"cleanup_schedule"` // Cron schedule for the session reaper
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"` // Minimum interval between calls, duration string
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"`
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig contains unified configuration for all AI providers
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider"` // "claude" or "gemini"
	Disabled        bool        `toml:"disabled"`         // Force the DOM fallback extractor, no external calls
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings should be exposed in merx.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Site: SiteConfig{
			BaseURL:      "https://www.example-store.com",
			SearchPath:   "/search?q=",
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestDelay: 1 * time.Second,
			RandomDelay:  500 * time.Millisecond,
			StaleAfter:   6 * time.Hour,

			UpdateSchedule: "0 0 */2 * * *", // Every 2 hours
		},
		Scheduler: SchedulerConfig{
			MaxActiveTasks: 3,
			MaxRetries:     3,
			RetryBaseDelay: 1 * time.Second,
			RetryMaxDelay:  30 * time.Second,
			DequeueBackoff: 250 * time.Millisecond,
			HistorySize:    200,
		},
		Browser: BrowserConfig{
			MaxBrowsers:        2,
			MaxPages:           4,
			Headless:           true,
			NoSandbox:          true,
			NavigationTimeout:  30 * time.Second,
			JavaScriptWaitTime: 3 * time.Second,
			ScreenshotDir:      "./data/screenshots",
		},
		Extraction: ExtractionConfig{
			ChunkSize:         4000,
			MaxParallelChunks: 3,
			BatchDelay:        1 * time.Second,
			ChunkRetries:      2,
			CacheTTL:          24 * time.Hour,
			MemoryCacheSize:   512,
			ProbesFile:        "./probes.yaml",
			PurgeSchedule:     "0 30 * * * *", // Hourly, offset from the update sweep
		},
		Checkout: CheckoutConfig{
			SessionExpiry:   30 * time.Minute,
			CleanupSchedule: "0 */5 * * * *", // Every 5 minutes
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   4096,
			Temperature: 0.2,
			RateLimit:   "1s",
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-3-flash-preview",
			Temperature: 0.2,
			RateLimit:   "4s",
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files, later files override
// earlier files. Priority: env > last file > ... > first file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
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

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints on the configuration
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Task concurrency must never exceed available page capacity, otherwise
	// tasks would block waiting for browser pages they can never acquire.
	if config.Scheduler.MaxActiveTasks > config.Browser.MaxPages {
		return fmt.Errorf("invalid configuration: scheduler.max_active_tasks (%d) exceeds browser.max_pages (%d)",
			config.Scheduler.MaxActiveTasks, config.Browser.MaxPages)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MERX_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if baseURL := os.Getenv("MERX_SITE_BASE_URL"); baseURL != "" {
		config.Site.BaseURL = baseURL
	}

	if active := os.Getenv("MERX_SCHEDULER_MAX_ACTIVE"); active != "" {
		if n, err := strconv.Atoi(active); err == nil {
			config.Scheduler.MaxActiveTasks = n
		}
	}
	if retries := os.Getenv("MERX_SCHEDULER_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Scheduler.MaxRetries = n
		}
	}

	if badgerPath := os.Getenv("MERX_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("MERX_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = key
	}
	if provider := os.Getenv("MERX_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}
	if disabled := os.Getenv("MERX_LLM_DISABLED"); disabled != "" {
		if b, err := strconv.ParseBool(disabled); err == nil {
			config.LLM.Disabled = b
		}
	}
}
