package app

import (
	"strings"

	"github.com/charlesng35/linkcard/internal/database"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/internal/services"
)

// DatabaseOptions converts DatabaseConfig into the database package representation.
func (c DatabaseConfig) DatabaseOptions() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var auth DBAuthConfig
	switch cfg.Driver {
	case "", "sqlite", "sqlite3":
		cfg.Driver = "sqlite"
		return cfg
	case "postgres", "postgresql":
		cfg.Driver = "postgres"
		auth = c.Postgres
	case "mysql", "mariadb":
		cfg.Driver = "mysql"
		auth = c.MySQL
	default:
		// Unknown drivers surface as an error from database.Open.
		return cfg
	}

	cfg.Host = strings.TrimSpace(auth.Host)
	cfg.Port = auth.Port
	cfg.Name = strings.TrimSpace(auth.Database)
	cfg.User = strings.TrimSpace(auth.Username)
	cfg.Password = auth.Password
	return cfg
}

// SeedSettings returns the card settings stored on first boot.
func (c Config) SeedSettings() services.CardSettings {
	settings := services.DefaultCardSettings()
	if c.Card.CacheTTLHours > 0 {
		settings.CacheTTLHours = c.Card.CacheTTLHours
	}
	if c.Card.FetchTimeoutSeconds > 0 {
		settings.FetchTimeoutSeconds = c.Card.FetchTimeoutSeconds
	}
	settings.OpenInNewTab = c.Card.OpenInNewTab
	settings.TrackClicks = c.Card.TrackClicks
	if mode := strings.TrimSpace(c.ProxyFilter.Mode); mode != "" {
		settings.FilterMode = strings.ToLower(mode)
	}
	settings.AllowDomains = trimList(c.ProxyFilter.AllowDomains)
	settings.BlockDomains = trimList(c.ProxyFilter.BlockDomains)
	settings.BlockPaths = trimList(c.ProxyFilter.BlockPaths)
	settings.BlockPrivate = c.ProxyFilter.BlockPrivate
	return settings
}

// FetcherOptions converts FetchConfig into fetcher options. Timeout and
// filter come from the stored settings.
func (c FetchConfig) FetcherOptions() []fetch.Option {
	opts := []fetch.Option{
		fetch.WithUserAgent(c.UserAgent),
		fetch.WithMaxBodyBytes(c.MaxBodyBytes),
		fetch.WithMaxRedirects(c.MaxRedirects),
	}
	if limiter := fetch.NewHostLimiter(c.PerHostRequests, c.PerHostBurst); limiter != nil {
		opts = append(opts, fetch.WithHostLimiter(limiter))
	}
	return opts
}

// ServiceConfig converts FriendLinksConfig into the feed reader parameters.
func (c FriendLinksConfig) ServiceConfig() services.FriendLinkConfig {
	return services.FriendLinkConfig{
		FeedTimeout:     c.FeedTimeout,
		FeedTTL:         c.FeedTTL,
		ItemsPerFeed:    c.ItemsPerFeed,
		FeedConcurrency: c.FeedConcurrency,
	}
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
