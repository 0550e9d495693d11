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
	DB      DBConfig      `mapstructure:"db"`
	Sitemap SitemapConfig `mapstructure:"sitemap"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Cron    CronConfig    `mapstructure:"cron"`
	Export  ExportConfig  `mapstructure:"export"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// SitemapConfig locates the channels sitemap.
type SitemapConfig struct {
	URL string `mapstructure:"url"`
}

// CrawlerConfig governs the indexing loop.
type CrawlerConfig struct {
	UserAgent             string `mapstructure:"user_agent"`
	DelayMs               int    `mapstructure:"delay_ms"`
	SitemapTimeoutSeconds int    `mapstructure:"sitemap_timeout_seconds"`
	PageTimeoutSeconds    int    `mapstructure:"page_timeout_seconds"`
	MaxChannels           int    `mapstructure:"max_channels"`
}

// CronConfig gates the privileged index/export endpoints. An empty secret
// disables them entirely.
type CronConfig struct {
	Secret string `mapstructure:"secret"`
}

// ExportConfig selects the blob store receiving index exports.
type ExportConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Object    string `mapstructure:"object"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHANNELINDEX")
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
	v.SetDefault("db.table", "channels")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("sitemap.url", "https://open.video/channels-sitemap.xml")
	v.SetDefault("crawler.user_agent", "channelindex-bot/0.1")
	v.SetDefault("crawler.delay_ms", 500)
	v.SetDefault("crawler.sitemap_timeout_seconds", 30)
	v.SetDefault("crawler.page_timeout_seconds", 15)
	v.SetDefault("crawler.max_channels", 0)
	v.SetDefault("export.provider", "local")
	v.SetDefault("export.local_dir", "data")
	v.SetDefault("export.object", "channels_index.json")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Sitemap.URL == "" {
		return fmt.Errorf("sitemap.url is required")
	}
	if c.Crawler.DelayMs < 0 {
		return fmt.Errorf("crawler.delay_ms must be >= 0")
	}
	if c.Crawler.SitemapTimeoutSeconds <= 0 || c.Crawler.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler timeouts must be > 0")
	}
	switch c.Export.Provider {
	case "local", "gcs":
	default:
		return fmt.Errorf("export.provider must be local or gcs")
	}
	if c.Export.Provider == "gcs" && c.Export.GCSBucket == "" {
		return fmt.Errorf("export.gcs_bucket must be set when export.provider is gcs")
	}
	return nil
}

// Delay converts the configured per-request pause into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawler.DelayMs) * time.Millisecond
}

// SitemapTimeout bounds the sitemap GET.
func (c Config) SitemapTimeout() time.Duration {
	return time.Duration(c.Crawler.SitemapTimeoutSeconds) * time.Second
}

// PageTimeout bounds each channel page GET; shorter than the sitemap fetch.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Crawler.PageTimeoutSeconds) * time.Second
}
