package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/api"
	"github.com/charlesng35/linkcard/internal/app"
	iauth "github.com/charlesng35/linkcard/internal/auth"
	"github.com/charlesng35/linkcard/internal/cache"
	sharedtestutil "github.com/charlesng35/linkcard/internal/database/testutil"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/internal/middleware"
	"github.com/charlesng35/linkcard/internal/monitoring"
	"github.com/charlesng35/linkcard/internal/monitoring/checks"
	"github.com/charlesng35/linkcard/internal/render"
	"github.com/charlesng35/linkcard/internal/services"
	"github.com/charlesng35/linkcard/pkg/crypto"
	"github.com/charlesng35/linkcard/pkg/response"
)

const (
	// AdminUsername and AdminPassword are the credentials of the test admin.
	AdminUsername = "admin"
	AdminPassword = "Secret123!"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database
// and a fake upstream site for handler tests.
type Env struct {
	T           *testing.T
	DB          *gorm.DB
	Cache       *cache.MemoryStore
	Router      *gin.Engine
	Upstream    *Upstream
	Cards       *services.CardService
	Clicks      *services.ClickService
	Settings    *services.SettingsService
	FriendLinks *services.FriendLinkService
	Monitoring  *monitoring.Module
	csrfToken   string
	csrfCookie  *http.Cookie
}

// Upstream serves canned pages and counts hits per path.
type Upstream struct {
	Server *httptest.Server

	mu    sync.Mutex
	pages map[string]upstreamPage
	hits  map[string]int
}

type upstreamPage struct {
	status      int
	contentType string
	body        string
}

// Serve registers an HTML page at path.
func (u *Upstream) Serve(path, body string) string {
	return u.ServeWithType(path, "text/html; charset=utf-8", body)
}

// ServeWithType registers a page with an explicit content type and returns its absolute URL.
func (u *Upstream) ServeWithType(path, contentType, body string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pages[path] = upstreamPage{status: http.StatusOK, contentType: contentType, body: body}
	return u.Server.URL + path
}

// Hits reports how often path was requested.
func (u *Upstream) Hits(path string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[path]
}

// URL returns the absolute URL of path, whether or not it is served.
func (u *Upstream) URL(path string) string {
	return u.Server.URL + path
}

func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.hits[r.URL.Path]++
	page, ok := u.pages[r.URL.Path]
	u.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", page.contentType)
	w.WriteHeader(page.status)
	_, _ = w.Write([]byte(page.body))
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	upstream := &Upstream{pages: make(map[string]upstreamPage), hits: make(map[string]int)}
	upstream.Server = httptest.NewServer(upstream)
	t.Cleanup(upstream.Server.Close)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	store := cache.NewMemoryStore(time.Minute)
	fetcher := fetch.New(fetch.WithTimeout(5 * time.Second))

	settings, err := services.NewSettingsService(db)
	require.NoError(t, err)
	// The fake upstream listens on loopback.
	seed := services.DefaultCardSettings()
	seed.BlockPrivate = false
	require.NoError(t, settings.Seed(t.Context(), seed))
	fetcher.SetFilter(seed.Filter())
	settings.OnChange(func(s services.CardSettings) {
		fetcher.SetTimeout(s.FetchTimeout())
		fetcher.SetFilter(s.Filter())
	})

	cards, err := services.NewCardService(db, store, fetcher, settings)
	require.NoError(t, err)
	clicks, err := services.NewClickService(db)
	require.NoError(t, err)
	links, err := services.NewFriendLinkService(db, store, fetcher, services.FriendLinkConfig{FeedTimeout: 5 * time.Second})
	require.NoError(t, err)

	renderer, err := render.New()
	require.NoError(t, err)

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	hash, err := crypto.HashPassword(AdminPassword)
	require.NoError(t, err)
	admin, err := iauth.NewAdminAuthenticator(iauth.AdminConfig{Username: AdminUsername, PasswordHash: hash}, jwtSvc)
	require.NoError(t, err)

	mon, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)
	mon.Health().RegisterReadiness(checks.Database(db, time.Second))
	mon.Health().RegisterReadiness(checks.Cache(store, app.CacheBackendMemory, time.Second))

	cfg := &app.Config{
		Server: app.ServerConfig{
			CSRF:      app.CSRFConfig{Enabled: true},
			RateLimit: app.RateLimitConfig{Enabled: true, Requests: 1000, Window: time.Minute},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Admin: app.AdminSettings{Username: AdminUsername, PasswordHash: hash},
		},
	}

	router, err := api.NewRouter(api.Dependencies{
		Config:      cfg,
		Cache:       store,
		Cards:       cards,
		Clicks:      clicks,
		Settings:    settings,
		FriendLinks: links,
		Renderer:    renderer,
		Admin:       admin,
		Monitoring:  mon,
		RateStore:   middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:           t,
		DB:          db,
		Cache:       store,
		Router:      router,
		Upstream:    upstream,
		Cards:       cards,
		Clicks:      clicks,
		Settings:    settings,
		FriendLinks: links,
		Monitoring:  mon,
	}
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

// Login authenticates as the test admin and returns the issued token.
func (e *Env) Login() LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"username": AdminUsername,
		"password": AdminPassword,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	require.Equal(e.T, AdminUsername, result.Username)
	require.True(e.T, result.ExpiresAt.After(time.Now()))

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, false, nil)
}

// RequestWithHeaders is Request with extra request headers.
func (e *Env) RequestWithHeaders(method, path string, body any, token string, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, false, headers)
}

func (e *Env) request(method, path string, body any, token string, skipCSRF bool, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	if !skipCSRF && requiresCSRFAttestation(method) {
		e.ensureCSRFToken()
		if e.csrfCookie != nil {
			req.AddCookie(e.csrfCookie)
		}
		if e.csrfToken != "" {
			req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	e.captureCSRF(w.Result())
	return w
}

func (e *Env) ensureCSRFToken() {
	if e.csrfToken != "" && e.csrfCookie != nil {
		return
	}
	resp := e.request(http.MethodGet, "/api/friend-links", nil, "", true, nil)
	require.Equal(e.T, http.StatusOK, resp.Code, resp.Body.String())
}

func (e *Env) captureCSRF(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if token := resp.Header.Get(middleware.CSRFHeaderName); token != "" {
		e.csrfToken = token
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.CSRFCookieName {
			// Clone to avoid unintended mutations between tests
			e.csrfCookie = &http.Cookie{
				Name:       c.Name,
				Value:      c.Value,
				Path:       c.Path,
				Domain:     c.Domain,
				Expires:    c.Expires,
				Raw:        c.Raw,
				MaxAge:     c.MaxAge,
				Secure:     c.Secure,
				HttpOnly:   c.HttpOnly,
				SameSite:   c.SameSite,
				RawExpires: c.RawExpires,
			}
			break
		}
	}
}

func requiresCSRFAttestation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
