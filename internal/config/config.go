// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"smartcrawl/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Browser BrowserConfig `mapstructure:"browser"`
	Output  OutputConfig  `mapstructure:"output"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	NavTimeoutSeconds        int     `mapstructure:"nav_timeout_seconds"`
	QuiescenceTimeoutSeconds int     `mapstructure:"quiescence_timeout_seconds"`
	MaxRetries               int     `mapstructure:"max_retries"`
	RetryDelayMs             int     `mapstructure:"retry_delay_ms"`
	ScrollStepPx             int     `mapstructure:"scroll_step_px"`
	ScrollIntervalMs         int     `mapstructure:"scroll_interval_ms"`
	ScrollMaxPx              int     `mapstructure:"scroll_max_px"`
	MaxParallelJobs          int     `mapstructure:"max_parallel_jobs"`
	DomainQPS                float64 `mapstructure:"domain_qps"`
	Selectors                []string
}

// BrowserConfig controls the headless browser process.
type BrowserConfig struct {
	Headless     bool   `mapstructure:"headless"`
	UserAgent    string `mapstructure:"user_agent"`
	IdleWindowMs int    `mapstructure:"idle_window_ms"`
}

// OutputConfig sets artifact locations.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	ArtifactDir string `mapstructure:"artifact_dir"`
}

// StoreConfig selects and configures the job store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory | postgres
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SMARTCRAWL")
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
	v.SetDefault("server.port", 3000)
	v.SetDefault("crawler.nav_timeout_seconds", 30)
	v.SetDefault("crawler.quiescence_timeout_seconds", 5)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_delay_ms", 2000)
	v.SetDefault("crawler.scroll_step_px", 100)
	v.SetDefault("crawler.scroll_interval_ms", 100)
	v.SetDefault("crawler.scroll_max_px", 15000)
	v.SetDefault("crawler.max_parallel_jobs", 0)
	v.SetDefault("crawler.domain_qps", 0)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.idle_window_ms", 500)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.artifact_dir", ".")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.table", "jobs")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.nav_timeout_seconds must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set when store.backend is postgres")
		}
	default:
		return fmt.Errorf("store.backend must be memory or postgres, got %q", c.Store.Backend)
	}
	return nil
}

// Orchestrator converts the crawl knobs into the engine's config struct.
func (c Config) Orchestrator() crawler.OrchestratorConfig {
	return crawler.OrchestratorConfig{
		NavigationTimeout: time.Duration(c.Crawler.NavTimeoutSeconds) * time.Second,
		QuiescenceTimeout: time.Duration(c.Crawler.QuiescenceTimeoutSeconds) * time.Second,
		MaxRetries:        c.Crawler.MaxRetries,
		RetryDelay:        time.Duration(c.Crawler.RetryDelayMs) * time.Millisecond,
		Scroll: crawler.ScrollConfig{
			Step:        c.Crawler.ScrollStepPx,
			Interval:    time.Duration(c.Crawler.ScrollIntervalMs) * time.Millisecond,
			MaxDistance: c.Crawler.ScrollMaxPx,
		},
		ArtifactDir: c.Output.ArtifactDir,
		DomainQPS:   c.Crawler.DomainQPS,
	}
}
