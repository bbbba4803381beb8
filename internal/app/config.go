package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the linkcard service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Card        CardConfig        `mapstructure:"card"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	ProxyFilter ProxyFilterConfig `mapstructure:"proxy_filter"`
	FriendLinks FriendLinksConfig `mapstructure:"friend_links"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Auth        AuthConfig        `mapstructure:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	CSRF            CSRFConfig      `mapstructure:"csrf"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	// TrustedProxies lists the proxy addresses or CIDRs whose forwarding
	// headers are believed when deriving the client IP for rate limiting.
	// Empty trusts none, so the socket address is used.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// CSRFConfig controls CSRF protection middleware.
type CSRFConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CORSConfig lists the origins allowed to call the public API. Empty allows any.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig bounds public requests per client IP.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig selects the card cache backend.
type CacheConfig struct {
	// Backend is one of database, memory or redis.
	Backend       string           `mapstructure:"backend"`
	MemoryCleanup time.Duration    `mapstructure:"memory_cleanup"`
	Redis         RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CardConfig seeds the editable card settings on first boot.
type CardConfig struct {
	CacheTTLHours       int  `mapstructure:"cache_ttl_hours"`
	FetchTimeoutSeconds int  `mapstructure:"fetch_timeout_seconds"`
	OpenInNewTab        bool `mapstructure:"open_in_new_tab"`
	TrackClicks         bool `mapstructure:"track_clicks"`
	MaxShortcodes       int  `mapstructure:"max_shortcodes"`
}

// FetchConfig tunes the outbound HTTP client.
type FetchConfig struct {
	UserAgent       string  `mapstructure:"user_agent"`
	MaxBodyBytes    int64   `mapstructure:"max_body_bytes"`
	MaxRedirects    int     `mapstructure:"max_redirects"`
	PerHostRequests float64 `mapstructure:"per_host_rps"`
	PerHostBurst    int     `mapstructure:"per_host_burst"`
}

// ProxyFilterConfig seeds the outbound request filter on first boot.
type ProxyFilterConfig struct {
	Mode         string   `mapstructure:"mode"`
	AllowDomains []string `mapstructure:"allow_domains"`
	BlockDomains []string `mapstructure:"block_domains"`
	BlockPaths   []string `mapstructure:"block_paths"`
	BlockPrivate bool     `mapstructure:"block_private"`
}

// FriendLinksConfig tunes the feed reader.
type FriendLinksConfig struct {
	FeedTimeout     time.Duration `mapstructure:"feed_timeout"`
	FeedTTL         time.Duration `mapstructure:"feed_ttl"`
	ItemsPerFeed    int           `mapstructure:"items_per_feed"`
	FeedConcurrency int           `mapstructure:"feed_concurrency"`
}

// MaintenanceConfig schedules background jobs.
type MaintenanceConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	CacheSchedule      string        `mapstructure:"cache_schedule"`
	ClickSchedule      string        `mapstructure:"click_schedule"`
	FeedSchedule       string        `mapstructure:"feed_schedule"`
	ClickRetentionDays int           `mapstructure:"click_retention_days"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures the admin login and token settings.
type AuthConfig struct {
	JWT   JWTSettings   `mapstructure:"jwt"`
	Admin AdminSettings `mapstructure:"admin"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// AdminSettings holds the single admin account. An empty PasswordHash
// disables the admin API.
type AdminSettings struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// LoadConfig reads .env, config.yaml and LINKCARD_ environment variables on
// top of built-in defaults.
func LoadConfig(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("LINKCARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.csrf.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests", 60)
	v.SetDefault("server.rate_limit.window", "1m")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/linkcard.sqlite")

	v.SetDefault("cache.backend", "database")
	v.SetDefault("cache.memory_cleanup", "10m")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("card.cache_ttl_hours", 72)
	v.SetDefault("card.fetch_timeout_seconds", 15)
	v.SetDefault("card.open_in_new_tab", true)
	v.SetDefault("card.track_clicks", true)
	v.SetDefault("card.max_shortcodes", 20)

	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.max_body_bytes", 2<<20)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.per_host_rps", 2)
	v.SetDefault("fetch.per_host_burst", 4)

	v.SetDefault("proxy_filter.mode", "allow_all")
	v.SetDefault("proxy_filter.allow_domains", []string{})
	v.SetDefault("proxy_filter.block_domains", []string{})
	v.SetDefault("proxy_filter.block_paths", []string{})
	v.SetDefault("proxy_filter.block_private", true)

	v.SetDefault("friend_links.feed_timeout", "8s")
	v.SetDefault("friend_links.feed_ttl", "12h")
	v.SetDefault("friend_links.items_per_feed", 5)
	v.SetDefault("friend_links.feed_concurrency", 4)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.cache_schedule", "@hourly")
	v.SetDefault("maintenance.click_schedule", "@daily")
	v.SetDefault("maintenance.feed_schedule", "@every 6h")
	v.SetDefault("maintenance.click_retention_days", 365)
	v.SetDefault("maintenance.job_timeout", "5m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.issuer", "linkcard")
	v.SetDefault("auth.jwt.access_token_ttl", "12h")
	v.SetDefault("auth.admin.username", "admin")
	v.SetDefault("auth.admin.password_hash", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
