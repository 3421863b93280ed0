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
	Server    ServerConfig    `mapstructure:"server"`
	Source    SourceConfig    `mapstructure:"source"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	DB        DBConfig        `mapstructure:"db"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig identifies the site being scraped. Relative hrefs found during
// extraction are resolved against BaseURL.
type SourceConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// ScraperConfig governs page visits and extraction limits.
type ScraperConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RenderEnabled  bool          `mapstructure:"render_enabled"`
	MaxRenderTabs  int           `mapstructure:"max_render_tabs"`
	HostQPS        float64       `mapstructure:"host_qps"`
	SnapshotDir    string        `mapstructure:"snapshot_dir"`
}

// SchedulerConfig controls the recurring composite refresh and the startup
// bootstrap.
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKSCOUT")
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
	v.SetDefault("source.base_url", "https://www.worldofbooks.com")
	v.SetDefault("scraper.user_agent", "bookscout/1.0 (+https://github.com/bookscout/bookscout)")
	v.SetDefault("scraper.nav_timeout", "30s")
	v.SetDefault("scraper.request_timeout", "60s")
	v.SetDefault("scraper.render_enabled", true)
	v.SetDefault("scraper.max_render_tabs", 2)
	v.SetDefault("scraper.host_qps", 1.0)
	v.SetDefault("scraper.snapshot_dir", "")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.startup_delay", "2s")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if !strings.HasPrefix(c.Source.BaseURL, "http") {
		return fmt.Errorf("source.base_url must be an absolute http(s) URL")
	}
	if c.Scraper.UserAgent == "" {
		return fmt.Errorf("scraper.user_agent must be set")
	}
	if c.Scraper.NavTimeout <= 0 {
		return fmt.Errorf("scraper.nav_timeout must be > 0")
	}
	if c.Scraper.RequestTimeout < c.Scraper.NavTimeout {
		return fmt.Errorf("scraper.request_timeout must be >= scraper.nav_timeout")
	}
	if c.Scraper.RenderEnabled && c.Scraper.MaxRenderTabs <= 0 {
		return fmt.Errorf("scraper.max_render_tabs must be > 0 when rendering is enabled")
	}
	if c.Scraper.HostQPS < 0 {
		return fmt.Errorf("scraper.host_qps must be >= 0")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be > 0 when the scheduler is enabled")
	}
	return nil
}
