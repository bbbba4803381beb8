package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/api"
	"github.com/charlesng35/linkcard/internal/app"
	"github.com/charlesng35/linkcard/internal/app/maintenance"
	iauth "github.com/charlesng35/linkcard/internal/auth"
	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/database"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/internal/monitoring"
	"github.com/charlesng35/linkcard/internal/monitoring/checks"
	"github.com/charlesng35/linkcard/internal/render"
	"github.com/charlesng35/linkcard/internal/services"
	"github.com/charlesng35/linkcard/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB           *gorm.DB
	Cache        cache.Store
	CacheBackend string
	Fetcher      *fetch.Fetcher
	Settings     *services.SettingsService
	Cards        *services.CardService
	Clicks       *services.ClickService
	FriendLinks  *services.FriendLinkService
	Monitoring   *monitoring.Module
	Cleaner      *maintenance.Cleaner
	Router       *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Cache, stack.CacheBackend, err = cfg.Cache.OpenStore(stack.DB, log)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	log.Info("cache ready", zap.String("backend", stack.CacheBackend))

	stack.Settings, err = services.NewSettingsService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise settings service: %w", err)
	}
	if err := stack.Settings.Seed(ctx, cfg.SeedSettings()); err != nil {
		return nil, fmt.Errorf("seed card settings: %w", err)
	}
	current, err := stack.Settings.CardSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load card settings: %w", err)
	}

	fetchOpts := append(cfg.Fetch.FetcherOptions(),
		fetch.WithTimeout(current.FetchTimeout()),
		fetch.WithFilter(current.Filter()),
	)
	stack.Fetcher = fetch.New(fetchOpts...)
	stack.Settings.OnChange(func(s services.CardSettings) {
		stack.Fetcher.SetTimeout(s.FetchTimeout())
		stack.Fetcher.SetFilter(s.Filter())
	})

	stack.Cards, err = services.NewCardService(stack.DB, stack.Cache, stack.Fetcher, stack.Settings)
	if err != nil {
		return nil, fmt.Errorf("initialise card service: %w", err)
	}
	stack.Clicks, err = services.NewClickService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise click service: %w", err)
	}
	stack.FriendLinks, err = services.NewFriendLinkService(stack.DB, stack.Cache, stack.Fetcher, cfg.FriendLinks.ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise friend link service: %w", err)
	}

	renderer, err := render.New(
		render.WithNewTab(current.OpenInNewTab),
		render.WithMaxShortcodes(cfg.Card.MaxShortcodes),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise renderer: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}
	admin, err := iauth.NewAdminAuthenticator(cfg.Auth.AdminConfig(), jwtSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise admin authenticator: %w", err)
	}
	if !admin.Enabled() {
		log.Warn("auth.admin.password_hash is empty; admin API is disabled")
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)
	health := stack.Monitoring.Health()
	health.RegisterReadiness(checks.Database(stack.DB, healthCheckTimeout))
	health.RegisterReadiness(checks.Cache(stack.Cache, stack.CacheBackend, healthCheckTimeout))

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Cache, stack.Clicks, stack.FriendLinks,
			maintenance.WithRecorder(stack.Monitoring),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
			maintenance.WithClickSchedule(cfg.Maintenance.ClickSchedule),
			maintenance.WithFeedSchedule(cfg.Maintenance.FeedSchedule),
			maintenance.WithClickRetentionDays(cfg.Maintenance.ClickRetentionDays),
			maintenance.WithJobTimeout(cfg.Maintenance.JobTimeout),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		health.RegisterLiveness(checks.Maintenance(stack.Monitoring.Jobs(), 0))
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:      cfg,
		Cache:       stack.Cache,
		Cards:       stack.Cards,
		Clicks:      stack.Clicks,
		Settings:    stack.Settings,
		FriendLinks: stack.FriendLinks,
		Renderer:    renderer,
		Admin:       admin,
		Monitoring:  stack.Monitoring,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if closer, ok := s.Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warn("cache shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db, nil); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
