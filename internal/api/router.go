package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/linkcard/internal/app"
	iauth "github.com/charlesng35/linkcard/internal/auth"
	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/handlers"
	"github.com/charlesng35/linkcard/internal/middleware"
	"github.com/charlesng35/linkcard/internal/monitoring"
	"github.com/charlesng35/linkcard/internal/render"
	"github.com/charlesng35/linkcard/internal/services"
)

// Dependencies carries the services the router wires into handlers.
type Dependencies struct {
	Config      *app.Config
	Cache       cache.Store
	Cards       *services.CardService
	Clicks      *services.ClickService
	Settings    *services.SettingsService
	FriendLinks *services.FriendLinkService
	Renderer    *render.Renderer
	Admin       *iauth.AdminAuthenticator
	Monitoring  *monitoring.Module

	// RateStore overrides the cache-backed rate limiter store.
	RateStore middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.Cache == nil:
		return fmt.Errorf("cache store must be provided")
	case d.Cards == nil, d.Clicks == nil, d.Settings == nil, d.FriendLinks == nil:
		return fmt.Errorf("card, click, settings and friend link services must be provided")
	case d.Renderer == nil:
		return fmt.Errorf("renderer must be provided")
	case d.Admin == nil:
		return fmt.Errorf("admin authenticator must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	if cfg.Server.CSRF.Enabled {
		r.Use(middleware.CSRF())
	}
	if cfg.Server.RateLimit.Enabled {
		store := deps.RateStore
		if store == nil {
			store = middleware.NewRateStore(deps.Cache)
		}
		window := cfg.Server.RateLimit.Window
		if window <= 0 {
			window = time.Minute
		}
		r.Use(middleware.RateLimit(store, cfg.Server.RateLimit.Requests, window))
	}

	resolver, err := handlers.NewServiceResolver(deps.Cards, deps.Settings, deps.FriendLinks)
	if err != nil {
		return nil, err
	}
	cardHandler, err := handlers.NewCardHandler(deps.Cards, deps.Clicks, deps.Settings, deps.Renderer, resolver)
	if err != nil {
		return nil, err
	}
	linkHandler, err := handlers.NewFriendLinkHandler(deps.FriendLinks)
	if err != nil {
		return nil, err
	}
	authHandler, err := handlers.NewAuthHandler(deps.Admin)
	if err != nil {
		return nil, err
	}
	adminCards, err := handlers.NewAdminCardHandler(deps.Cards, deps.Clicks)
	if err != nil {
		return nil, err
	}
	settingsHandler, err := handlers.NewSettingsHandler(deps.Settings)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	registerCardRoutes(r, api, cardHandler)
	registerFriendLinkRoutes(api, linkHandler)
	registerAuthRoutes(api, authHandler, deps.Admin)

	admin := api.Group("/admin")
	admin.Use(middleware.Auth(deps.Admin))
	registerAdminRoutes(admin, adminRouteDeps{
		Cards:       adminCards,
		Settings:    settingsHandler,
		FriendLinks: linkHandler,
	})
	registerMonitoringRoutes(admin, handlers.NewMonitoringHandler(deps.Monitoring, cfg))

	registerHealthRoutes(r, cfg, deps.Monitoring)
	registerMetricsRoute(r, cfg, deps.Monitoring)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if !cfg.Monitoring.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
