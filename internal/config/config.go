// Package config loads and validates feedsync configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FEEDSYNC_DB_DSN.
const EnvPrefix = "FEEDSYNC"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site    SiteConfig    `mapstructure:"site"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Sync    SyncConfig    `mapstructure:"sync"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
}

// SiteConfig points at the WordPress site being mirrored. FeedURL and SitemapURL
// default to the standard WordPress locations under BaseURL.
type SiteConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	FeedURL            string `mapstructure:"feed_url"`
	SitemapURL         string `mapstructure:"sitemap_url"`
	PostSitemapPattern string `mapstructure:"post_sitemap_pattern"`
	PageParam          string `mapstructure:"page_param"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
}

// SyncConfig governs a reconciliation run.
type SyncConfig struct {
	// Sleep is the minimum gap between two outbound requests.
	Sleep time.Duration `mapstructure:"sleep"`
	// MaxFeedPages overrides the computed page budget; 0 means auto.
	MaxFeedPages int `mapstructure:"max_feed_pages"`
	// ItemsPerPage is the assumed feed page size. WordPress admins can change it, in
	// which case the page budget is only an estimate.
	ItemsPerPage      int      `mapstructure:"items_per_page"`
	BatchSize         int      `mapstructure:"batch_size"`
	DescriptionLength int      `mapstructure:"description_length"`
	Categories        []string `mapstructure:"categories"`
	TopCategories     int      `mapstructure:"top_categories"`
	// DryRun swaps Postgres for an in-memory store.
	DryRun bool `mapstructure:"dry_run"`
}

// DBConfig controls access to Postgres.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	RetryCount      int           `mapstructure:"retry_count"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level overrides the mode's default level (debug, info, warn, error).
	Level string `mapstructure:"level"`
}

// MetricsConfig configures the Pushgateway target used after one-shot runs.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ArchiveConfig enables raw page archival of backfilled pages.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// NotifyConfig enables a message per newly stored article.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls serve mode.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Schedule        string        `mapstructure:"schedule"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Archive and notify backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendPubSub = "pubsub"
	BackendMemory = "memory"
)

// Override sets a value with the highest precedence, typically from a CLI flag.
type Override func(v *viper.Viper)

// Set overrides key with value.
func Set(key string, value any) Override {
	return func(v *viper.Viper) { v.Set(key, value) }
}

// Load builds a Config from an optional file plus FEEDSYNC_* environment variables.
// Overrides win over both.
func Load(path string, overrides ...Override) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	for _, o := range overrides {
		o(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.resolveSiteURLs()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://ludepress.com")
	v.SetDefault("site.feed_url", "")
	v.SetDefault("site.sitemap_url", "")
	v.SetDefault("site.post_sitemap_pattern", "post-sitemap")
	v.SetDefault("site.page_param", "paged")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_body_bytes", 0)
	v.SetDefault("sync.sleep", "1s")
	v.SetDefault("sync.max_feed_pages", 0)
	v.SetDefault("sync.items_per_page", 10)
	v.SetDefault("sync.batch_size", 1000)
	v.SetDefault("sync.description_length", 200)
	v.SetDefault("sync.categories", []string{"专栏评论"})
	v.SetDefault("sync.top_categories", 10)
	v.SetDefault("sync.dry_run", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.retry_count", 3)
	v.SetDefault("db.retry_delay", "1s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "feedsync")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", BackendLocal)
	v.SetDefault("archive.dir", "data/archive")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.backend", BackendPubSub)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "feedsync-articles")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule", "@every 1h")
	v.SetDefault("server.run_on_start", false)
	v.SetDefault("server.shutdown_timeout", "10s")
}

func (c *Config) resolveSiteURLs() {
	base := strings.TrimRight(strings.TrimSpace(c.Site.BaseURL), "/")
	c.Site.BaseURL = base
	if strings.TrimSpace(c.Site.FeedURL) == "" && base != "" {
		c.Site.FeedURL = base + "/feed"
	}
	if strings.TrimSpace(c.Site.SitemapURL) == "" && base != "" {
		c.Site.SitemapURL = base + "/sitemap_index.xml"
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateURL("site.feed_url", c.Site.FeedURL); err != nil {
		return err
	}
	if err := validateURL("site.sitemap_url", c.Site.SitemapURL); err != nil {
		return err
	}
	if c.Site.PageParam == "" {
		return errors.New("site.page_param must be set")
	}
	if c.HTTP.Timeout <= 0 {
		return errors.New("http.timeout must be > 0")
	}
	if c.Sync.Sleep < 0 {
		return errors.New("sync.sleep must be >= 0")
	}
	if c.Sync.MaxFeedPages < 0 {
		return errors.New("sync.max_feed_pages must be >= 0")
	}
	if c.Sync.ItemsPerPage <= 0 {
		return errors.New("sync.items_per_page must be > 0")
	}
	if c.Sync.BatchSize <= 0 {
		return errors.New("sync.batch_size must be > 0")
	}
	if c.Sync.DescriptionLength <= 0 {
		return errors.New("sync.description_length must be > 0")
	}
	if !c.Sync.DryRun && c.DB.DSN == "" {
		return errors.New("db.dsn must be set unless sync.dry_run is enabled")
	}
	if c.DB.MaxConns <= 0 {
		return errors.New("db.max_conns must be > 0")
	}
	if c.DB.RetryCount < 0 {
		return errors.New("db.retry_count must be >= 0")
	}
	if c.DB.RetryDelay <= 0 {
		return errors.New("db.retry_delay must be > 0")
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case BackendLocal:
			if c.Archive.Dir == "" {
				return errors.New("archive.dir must be set for the local backend")
			}
		case BackendGCS:
			if c.Archive.Bucket == "" {
				return errors.New("archive.bucket must be set for the gcs backend")
			}
		case BackendMemory:
		default:
			return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
		}
	}
	if c.Notify.Enabled {
		switch c.Notify.Backend {
		case BackendPubSub:
			if c.Notify.ProjectID == "" {
				return errors.New("notify.project_id must be set for the pubsub backend")
			}
		case BackendMemory:
		default:
			return fmt.Errorf("notify.backend %q is not supported", c.Notify.Backend)
		}
		if c.Notify.Topic == "" {
			return errors.New("notify.topic must be set when notify is enabled")
		}
	}
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}
