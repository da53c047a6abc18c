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
	Auth      AuthConfig      `mapstructure:"auth"`
	DB        DBConfig        `mapstructure:"db"`
	Naver     NaverConfig     `mapstructure:"naver"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Render    RenderConfig    `mapstructure:"render"`
	Collector CollectorConfig `mapstructure:"collector"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// NaverConfig holds search provider credentials and endpoint.
type NaverConfig struct {
	ClientID       string `mapstructure:"client_id"`
	ClientSecret   string `mapstructure:"client_secret"`
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FetchConfig governs blog content fetching and extraction.
type FetchConfig struct {
	UserAgent       string `mapstructure:"user_agent"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	ExcerptMaxChars int    `mapstructure:"excerpt_max_chars"`
}

// RenderConfig configures the optional headless rendering fallback.
type RenderConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	MaxParallel   int      `mapstructure:"max_parallel"`
	NavTimeoutSec int      `mapstructure:"nav_timeout_seconds"`
	DomainQPS     float64  `mapstructure:"domain_qps"`
	MinHTMLBytes  int      `mapstructure:"min_html_bytes"`
	ShellKeywords []string `mapstructure:"shell_keywords"`
}

// CollectorConfig governs daily rank collection.
type CollectorConfig struct {
	Timezone    string `mapstructure:"timezone"`
	DefaultSize int    `mapstructure:"default_size"`
	ThrottleMs  int    `mapstructure:"throttle_ms"`
	HistoryDays int    `mapstructure:"history_days"`
}

// SchedulerConfig holds cron specs for the scheduled tasks.
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	CollectionSpec string `mapstructure:"collection_spec"`
	RenewalSpec    string `mapstructure:"renewal_spec"`
	PaymentSpec    string `mapstructure:"payment_spec"`
}

// BillingConfig points at the billing collaborator service.
type BillingConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ArchiveConfig selects where raw provider responses are archived.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// EventsConfig selects where collection events are published.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RedisConfig controls the optional rank-history cache. An empty Addr
// disables caching.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RANKTRACKER")
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
	v.SetDefault("db.max_open_conns", 8)
	v.SetDefault("naver.endpoint", "https://openapi.naver.com/v1/search/blog.json")
	v.SetDefault("naver.timeout_seconds", 10)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.excerpt_max_chars", 5000)
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_parallel", 1)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.domain_qps", 0.5)
	v.SetDefault("render.min_html_bytes", 2000)
	v.SetDefault("render.shell_keywords", []string{
		"__NEXT_DATA__",
		"data-reactroot",
		"window.__APOLLO_STATE__",
	})
	v.SetDefault("collector.timezone", "Asia/Seoul")
	v.SetDefault("collector.default_size", 40)
	v.SetDefault("collector.throttle_ms", 300)
	v.SetDefault("collector.history_days", 7)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.collection_spec", "0 2 * * *")
	v.SetDefault("scheduler.renewal_spec", "0 3 * * *")
	v.SetDefault("scheduler.payment_spec", "0 4 * * *")
	v.SetDefault("billing.timeout_seconds", 10)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("events.provider", "noop")
	v.SetDefault("redis.ttl_seconds", 600)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Naver.TimeoutSeconds <= 0 {
		return fmt.Errorf("naver.timeout_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.ExcerptMaxChars <= 0 {
		return fmt.Errorf("fetch.excerpt_max_chars must be > 0")
	}
	if _, err := time.LoadLocation(c.Collector.Timezone); err != nil {
		return fmt.Errorf("collector.timezone: %w", err)
	}
	if c.Collector.DefaultSize < 1 || c.Collector.DefaultSize > 100 {
		return fmt.Errorf("collector.default_size must be within 1..100")
	}
	if c.Collector.HistoryDays <= 0 {
		return fmt.Errorf("collector.history_days must be > 0")
	}
	if c.Render.Enabled && c.Render.MaxParallel <= 0 {
		return fmt.Errorf("render.max_parallel must be > 0 when render is enabled")
	}
	if c.Scheduler.Enabled && c.Billing.BaseURL == "" {
		return fmt.Errorf("billing.base_url must be set when the scheduler is enabled")
	}
	if c.Archive.Provider == "gcs" && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set for the gcs provider")
	}
	if c.Events.Provider == "pubsub" && (c.Events.ProjectID == "" || c.Events.Topic == "") {
		return fmt.Errorf("events.project_id and events.topic must be set for the pubsub provider")
	}
	return nil
}

// Location returns the loaded reference timezone. Validate guarantees it
// parses, so failures here fall back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Collector.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProviderTimeout converts the provider timeout into a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Naver.TimeoutSeconds) * time.Second
}

// FetchTimeout converts the content fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// Throttle converts the collector throttle into a duration.
func (c Config) Throttle() time.Duration {
	return time.Duration(c.Collector.ThrottleMs) * time.Millisecond
}

// HistoryTTL converts the Redis TTL into a duration.
func (c Config) HistoryTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
