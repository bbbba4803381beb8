package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/linkcard/internal/app"
	"github.com/charlesng35/linkcard/pkg/crypto"
)

func testConfig(t *testing.T, dbPath string) *app.Config {
	t.Helper()

	hash, err := crypto.HashPassword("Secret123!")
	require.NoError(t, err)

	return &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite", Path: dbPath},
		Cache:    app.CacheConfig{Backend: app.CacheBackendMemory, MemoryCleanup: time.Minute},
		Card: app.CardConfig{
			CacheTTLHours:       12,
			FetchTimeoutSeconds: 5,
			OpenInNewTab:        true,
			TrackClicks:         true,
		},
		ProxyFilter: app.ProxyFilterConfig{Mode: "allow_all", BlockPrivate: true},
		Maintenance: app.MaintenanceConfig{Enabled: true, ClickRetentionDays: 30},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT:   app.JWTSettings{Secret: "bootstrap-test-secret-with-32-bytes!!", Issuer: "linkcard"},
			Admin: app.AdminSettings{Username: "admin", PasswordHash: hash},
		},
	}
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "linkcard.db"))

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Equal(t, app.CacheBackendMemory, stack.CacheBackend)
	require.NotNil(t, stack.Cleaner)
	require.Equal(t, 5*time.Second, stack.Fetcher.Timeout())
	require.True(t, stack.Fetcher.Filter().BlockPrivate)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "database")
	require.Contains(t, rec.Body.String(), "maintenance")
}

func TestBootstrapKeepsStoredSettings(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "linkcard.db")
	ctx := context.Background()

	first, err := bootstrapRuntime(ctx, testConfig(t, dbPath), zap.NewNop())
	require.NoError(t, err)
	first.Shutdown(ctx, zap.NewNop())

	cfg := testConfig(t, dbPath)
	cfg.Card.CacheTTLHours = 48
	cfg.Card.FetchTimeoutSeconds = 20

	second, err := bootstrapRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { second.Shutdown(ctx, zap.NewNop()) })

	settings, err := second.Settings.CardSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, 12, settings.CacheTTLHours)
	require.Equal(t, 5, settings.FetchTimeoutSeconds)
	require.Equal(t, 5*time.Second, second.Fetcher.Timeout())
}

func TestBootstrapRejectsInvalidSeed(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "linkcard.db"))
	cfg.ProxyFilter.Mode = "denylist"

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Nil(t, stack)
	require.Contains(t, err.Error(), "seed card settings")
}

func TestBootstrapRejectsInvalidTrustedProxy(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "linkcard.db"))
	cfg.Maintenance.Enabled = false
	cfg.Server.TrustedProxies = []string{"not-a-cidr"}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Nil(t, stack)
	require.Contains(t, err.Error(), "trusted proxies")
}

func TestBootstrapRateLimitsForgedForwardedFor(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "linkcard.db"))
	cfg.Maintenance.Enabled = false
	cfg.Server.RateLimit = app.RateLimitConfig{Enabled: true, Requests: 2, Window: time.Minute}

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/friend-links", nil)
		req.RemoteAddr = "203.0.113.9:51000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("8.8.0.%d", i))
		rec := httptest.NewRecorder()
		stack.Router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	require.Equal(t, 18, limited)
}

func TestEnsureSecretsPresent(t *testing.T) {
	cfg := &app.Config{}
	cfg.Auth.JWT.Secret = "  short  "
	require.Error(t, ensureSecretsPresent(cfg))

	cfg.Auth.JWT.Secret = " bootstrap-test-secret-with-32-bytes!! "
	require.NoError(t, ensureSecretsPresent(cfg))
	require.Equal(t, "bootstrap-test-secret-with-32-bytes!!", cfg.Auth.JWT.Secret)

	require.Error(t, ensureSecretsPresent(nil))
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}
