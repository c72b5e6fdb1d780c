package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Crawl     CrawlConfig
	RateLimit RateLimitConfig
	Formatter FormatterConfig
	Search    SearchConfig
	Auth      AuthConfig
	APIRate   APIRateConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// DefaultProxy is the default proxy URL for all sessions.
	DefaultProxy string

	// Stealth injects anti-detection JS into every page before navigation.
	Stealth bool // default: true

	// BlockedResourceTypes lists resource types to block per page.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// CrawlConfig holds the run-wide crawl defaults.
type CrawlConfig struct {
	// Depth is the default number of ranked results to crawl.
	Depth int // default: 5

	// Timeout is the default per-page navigation deadline.
	Timeout time.Duration // default: 30s

	// Concurrency is the batch size inside each cluster task.
	Concurrency int // default: 3

	// ClusterBy is the default partition key: "domain" or "tld".
	ClusterBy string // default: "domain"

	// MaxClusters caps the cluster count per run.
	MaxClusters int // default: 5

	// GlobalMaxFetches caps simultaneous page fetches across ALL clusters.
	// 0 disables the cap, restoring the per-cluster-only ceiling.
	GlobalMaxFetches int // default: 0

	// ContentSelector optionally scopes text extraction to a CSS selector.
	ContentSelector string

	// ScreenshotDir is where verbose-mode screenshots are written.
	ScreenshotDir string // default: os.TempDir()
}

// RateLimitConfig controls the inter-batch politeness delays.
type RateLimitConfig struct {
	// BaseDelay is the delay between batches for ordinary clusters.
	BaseDelay time.Duration // default: 2s

	// Rules maps origin substrings to larger delays, checked in order.
	// Parsed from "pattern=duration,pattern=duration".
	Rules []RateRule
}

// RateRule binds a cluster-key substring to a politeness delay.
type RateRule struct {
	Pattern string
	Delay   time.Duration
}

// FormatterConfig controls markdown normalization.
type FormatterConfig struct {
	// Mode selects the formatter: "openai", "local" or "none".
	Mode string // default: "local"

	// APIKey authenticates against the OpenAI-compatible endpoint.
	APIKey string

	// Model is the chat model used for normalization.
	Model string // default: "gpt-4o-mini"

	// BaseURL is the OpenAI-compatible API root.
	BaseURL string // default: "https://api.openai.com/v1"

	// MaxContentChars truncates page content before it is sent to the
	// formatter.
	MaxContentChars int // default: 8000
}

// SearchConfig controls the ranked-URL search provider.
type SearchConfig struct {
	// BaseURL is the SearxNG-compatible instance queried for ranked results.
	BaseURL string

	// Timeout bounds one search call.
	Timeout time.Duration // default: 10s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// APIRateConfig controls per-key HTTP rate limiting.
type APIRateConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("CLUSTERCRAWL_HOST", "0.0.0.0"),
			Port: envIntOr("CLUSTERCRAWL_PORT", 8080),
			Mode: envOr("CLUSTERCRAWL_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("CLUSTERCRAWL_HEADLESS", true),
			NoSandbox:    envBoolOr("CLUSTERCRAWL_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("CLUSTERCRAWL_BROWSER_BIN"),
			DefaultProxy: os.Getenv("CLUSTERCRAWL_PROXY"),
			Stealth:      envBoolOr("CLUSTERCRAWL_STEALTH", true),
			BlockedResourceTypes: envSliceOr("CLUSTERCRAWL_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Crawl: CrawlConfig{
			Depth:            envIntOr("CLUSTERCRAWL_DEPTH", 5),
			Timeout:          envDurationOr("CLUSTERCRAWL_TIMEOUT", 30*time.Second),
			Concurrency:      envIntOr("CLUSTERCRAWL_CONCURRENCY", 3),
			ClusterBy:        envOr("CLUSTERCRAWL_CLUSTER_BY", "domain"),
			MaxClusters:      envIntOr("CLUSTERCRAWL_MAX_CLUSTERS", 5),
			GlobalMaxFetches: envIntOr("CLUSTERCRAWL_GLOBAL_MAX_FETCHES", 0),
			ContentSelector:  os.Getenv("CLUSTERCRAWL_CONTENT_SELECTOR"),
			ScreenshotDir:    envOr("CLUSTERCRAWL_SCREENSHOT_DIR", os.TempDir()),
		},
		RateLimit: RateLimitConfig{
			BaseDelay: envDurationOr("CLUSTERCRAWL_RATE_BASE_DELAY", 2*time.Second),
			Rules: envRulesOr("CLUSTERCRAWL_RATE_RULES", []RateRule{
				{Pattern: "google.", Delay: 5 * time.Second},
				{Pattern: "linkedin.", Delay: 5 * time.Second},
				{Pattern: "facebook.", Delay: 5 * time.Second},
				{Pattern: "amazon.", Delay: 5 * time.Second},
			}),
		},
		Formatter: FormatterConfig{
			Mode:            envOr("CLUSTERCRAWL_FORMATTER", "local"),
			APIKey:          os.Getenv("CLUSTERCRAWL_LLM_API_KEY"),
			Model:           envOr("CLUSTERCRAWL_LLM_MODEL", "gpt-4o-mini"),
			BaseURL:         envOr("CLUSTERCRAWL_LLM_BASE_URL", "https://api.openai.com/v1"),
			MaxContentChars: envIntOr("CLUSTERCRAWL_LLM_MAX_CONTENT", 8000),
		},
		Search: SearchConfig{
			BaseURL: os.Getenv("CLUSTERCRAWL_SEARCH_URL"),
			Timeout: envDurationOr("CLUSTERCRAWL_SEARCH_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("CLUSTERCRAWL_AUTH_ENABLED", true),
			APIKeys: envSliceOr("CLUSTERCRAWL_API_KEYS", nil),
		},
		APIRate: APIRateConfig{
			RequestsPerSecond: envFloatOr("CLUSTERCRAWL_RATE_RPS", 5.0),
			Burst:             envIntOr("CLUSTERCRAWL_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("CLUSTERCRAWL_LOG_LEVEL", "info"),
			Format: envOr("CLUSTERCRAWL_LOG_FORMAT", "json"),
		},
	}
}

// envRulesOr parses "pattern=duration,pattern=duration" into rate rules.
// Malformed entries are skipped; an empty result falls back.
func envRulesOr(key string, fallback []RateRule) []RateRule {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	rules := make([]RateRule, 0, len(parts))
	for _, p := range parts {
		pattern, raw, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || pattern == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		rules = append(rules, RateRule{Pattern: pattern, Delay: d})
	}
	if len(rules) == 0 {
		return fallback
	}
	return rules
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
