package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/app"
	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/database"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/internal/services"
	"github.com/charlesng35/linkcard/pkg/logger"
)

type cliOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "cardctl",
		Short:         "Operate a linkcard installation",
		Long:          "cardctl reads the same configuration as the server and runs one-off tasks against its database and cache.",
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration directory (default ./config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(
		newExtractCommand(opts),
		newPurgeCommand(opts),
		newRefreshFeedsCommand(opts),
		newHashPasswordCommand(),
	)
	return root
}

func (o *cliOptions) loadConfig() (*app.Config, error) {
	var (
		cfg *app.Config
		err error
	)
	if path := strings.TrimSpace(o.configPath); path != "" {
		cfg, err = app.LoadConfig(path)
	} else {
		cfg, err = app.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	if err := app.ConfigureLogging(o.logLevel); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return cfg, nil
}

// serviceSet is the subset of the server runtime a command needs.
type serviceSet struct {
	db    *gorm.DB
	store cache.Store
	cards *services.CardService
	links *services.FriendLinkService
	log   *zap.Logger
}

func openServices(ctx context.Context, cfg *app.Config) (*serviceSet, error) {
	set := &serviceSet{log: logger.WithModule("cardctl")}

	db, err := database.Open(cfg.Database.DatabaseOptions())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	set.db = db
	if err := database.AutoMigrateAndSeed(db, nil); err != nil {
		set.Close()
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	store, _, err := cfg.Cache.OpenStore(db, set.log)
	if err != nil {
		set.Close()
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	set.store = store

	settings, err := services.NewSettingsService(db)
	if err != nil {
		set.Close()
		return nil, err
	}
	if err := settings.Seed(ctx, cfg.SeedSettings()); err != nil {
		set.Close()
		return nil, fmt.Errorf("seed card settings: %w", err)
	}
	current, err := settings.CardSettings(ctx)
	if err != nil {
		set.Close()
		return nil, fmt.Errorf("load card settings: %w", err)
	}

	fetcher := newFetcher(cfg, current)

	if set.cards, err = services.NewCardService(db, store, fetcher, settings); err != nil {
		set.Close()
		return nil, err
	}
	if set.links, err = services.NewFriendLinkService(db, store, fetcher, cfg.FriendLinks.ServiceConfig()); err != nil {
		set.Close()
		return nil, err
	}
	return set, nil
}

func newFetcher(cfg *app.Config, settings services.CardSettings) *fetch.Fetcher {
	opts := append(cfg.Fetch.FetcherOptions(),
		fetch.WithTimeout(settings.FetchTimeout()),
		fetch.WithFilter(settings.Filter()),
	)
	return fetch.New(opts...)
}

// Close releases the cache connection and the database handle.
func (s *serviceSet) Close() {
	if s == nil {
		return
	}
	if rc, ok := s.store.(*cache.RedisClient); ok && rc != nil {
		_ = rc.Close()
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.log.Warn("failed to close database", zap.Error(err))
		}
	}
}
