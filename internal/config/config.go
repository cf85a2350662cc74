// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Library LibraryConfig `mapstructure:"library"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Render  RenderConfig  `mapstructure:"render"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Extract ExtractConfig `mapstructure:"extract"`
	Import  ImportConfig  `mapstructure:"import"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Search  SearchConfig  `mapstructure:"search"`
	LLM     LLMConfig     `mapstructure:"llm"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// LibraryConfig sets where and how article records are persisted.
type LibraryConfig struct {
	Path         string `mapstructure:"path"`
	MaxTextRunes int    `mapstructure:"max_text_runes"`
}

// HTTPConfig configures the static fetch client.
type HTTPConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	MaxRetries       int      `mapstructure:"max_retries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	DelaySeconds     int      `mapstructure:"delay_seconds"`
	UserAgents       []string `mapstructure:"user_agents"`
	MaxBodyBytes     int64    `mapstructure:"max_body_bytes"`
}

// RenderConfig configures the headless rendering fallback.
type RenderConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	NavTimeoutSeconds int      `mapstructure:"nav_timeout_seconds"`
	UserAgent         string   `mapstructure:"user_agent"`
	DenialPhrases     []string `mapstructure:"denial_phrases"`
}

// ProxyConfig describes the institutional proxy gateway. The blocklist and
// rewrite templates are deployment-specific and therefore configuration,
// not constants.
type ProxyConfig struct {
	Host                string   `mapstructure:"host"`
	LoginPath           string   `mapstructure:"login_path"`
	BlockedDomains      []string `mapstructure:"blocked_domains"`
	ProbeTimeoutSeconds int      `mapstructure:"probe_timeout_seconds"`
	Username            string   `mapstructure:"username"`
	Password            string   `mapstructure:"password"`
}

// ExtractConfig holds content-qualification thresholds.
type ExtractConfig struct {
	MinContentRunes int `mapstructure:"min_content_runes"`
	MinPDFRunes     int `mapstructure:"min_pdf_runes"`
}

// ImportConfig governs the batch importer.
type ImportConfig struct {
	FlushEvery int `mapstructure:"flush_every"`
}

// RemoteConfig points at the item-listing API.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	PageSize       int    `mapstructure:"page_size"`
	SortKey        string `mapstructure:"sort_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SearchConfig bounds the vector-space index.
type SearchConfig struct {
	MaxVocabulary int `mapstructure:"max_vocabulary"`
	TopKDefault   int `mapstructure:"top_k_default"`
}

// LLMConfig configures the answer-synthesis call.
type LLMConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	Model          string  `mapstructure:"model"`
	APIKey         string  `mapstructure:"api_key"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAPERDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("library.path", "data/articles.json")
	v.SetDefault("library.max_text_runes", 200_000)

	v.SetDefault("http.timeout_seconds", 20)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.delay_seconds", 2)
	v.SetDefault("http.max_body_bytes", int64(5*1024*1024))
	v.SetDefault("http.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	})

	v.SetDefault("render.enabled", true)
	v.SetDefault("render.nav_timeout_seconds", 30)
	v.SetDefault("render.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("render.denial_phrases", []string{
		"access denied",
		"access to this page has been denied",
		"please verify you are a human",
		"purchase this article",
		"institutional login required",
	})

	v.SetDefault("proxy.host", "")
	v.SetDefault("proxy.login_path", "/login?url=")
	v.SetDefault("proxy.blocked_domains", []string{
		"acs.org",
		"science.org",
		"sciencedirect.com",
		"wiley.com",
		"springer.com",
		"ieeexplore.ieee.org",
	})
	v.SetDefault("proxy.probe_timeout_seconds", 3)

	v.SetDefault("extract.min_content_runes", 200)
	v.SetDefault("extract.min_pdf_runes", 100)

	v.SetDefault("import.flush_every", 10)

	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.page_size", 50)
	v.SetDefault("remote.sort_key", "created_at")
	v.SetDefault("remote.timeout_seconds", 30)

	v.SetDefault("search.max_vocabulary", 5000)
	v.SetDefault("search.top_k_default", 5)

	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Library.Path) == "" {
		return fmt.Errorf("library.path must be set")
	}
	if c.Library.MaxTextRunes <= 0 {
		return fmt.Errorf("library.max_text_runes must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.DelaySeconds < 0 {
		return fmt.Errorf("http.delay_seconds must be >= 0")
	}
	if len(c.HTTP.UserAgents) == 0 {
		return fmt.Errorf("http.user_agents must include at least one identity")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	if c.Render.Enabled && c.Render.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("render.nav_timeout_seconds must be > 0 when render is enabled")
	}
	if c.Extract.MinContentRunes <= 0 {
		return fmt.Errorf("extract.min_content_runes must be > 0")
	}
	if c.Extract.MinPDFRunes <= 0 {
		return fmt.Errorf("extract.min_pdf_runes must be > 0")
	}
	if c.Import.FlushEvery <= 0 {
		return fmt.Errorf("import.flush_every must be > 0")
	}
	if c.Search.MaxVocabulary <= 0 {
		return fmt.Errorf("search.max_vocabulary must be > 0")
	}
	if c.Search.TopKDefault <= 0 {
		return fmt.Errorf("search.top_k_default must be > 0")
	}
	return nil
}

// HTTPTimeout converts the fetch timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PolitenessDelay is the fixed minimum delay between outbound fetches.
func (c Config) PolitenessDelay() time.Duration {
	return time.Duration(c.HTTP.DelaySeconds) * time.Second
}
