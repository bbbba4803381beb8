package handlers_test

import (
	"encoding/csv"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/linkcard/internal/handlers/testutil"
	"github.com/charlesng35/linkcard/internal/services"
)

func TestLoginAndMe(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	body := testutil.DecodeResponse(t, resp)
	require.Equal(t, "INVALID_CREDENTIALS", body.Error.Code)

	resp = env.Request(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin"}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)

	login := env.Login()

	resp = env.Request(http.MethodGet, "/api/auth/me", nil, login.Token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var me struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &me)
	require.Equal(t, testutil.AdminUsername, me.Username)
	require.Equal(t, "admin", me.Role)

	resp = env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminCardManagement(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login().Token

	first := loadCard(t, env, env.Upstream.Serve("/one", examplePage))
	loadCard(t, env, env.Upstream.Serve("/two", `<title>Second</title>`))

	resp := env.Request(http.MethodGet, "/api/admin/cards", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = env.Request(http.MethodGet, "/api/admin/cards?per_page=1", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	listed := testutil.DecodeResponse(t, resp)
	require.NotNil(t, listed.Meta)
	require.Equal(t, 2, listed.Meta.Total)
	require.Equal(t, 2, listed.Meta.TotalPages)

	resp = env.Request(http.MethodGet, "/api/admin/cards?search=second", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	var found []cardPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &found)
	require.Len(t, found, 1)
	require.Equal(t, "Second", found[0].Title)

	resp = env.Request(http.MethodGet, "/api/admin/cards?status=archived", nil, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.Request(http.MethodGet, "/api/admin/cards/"+first.ID, nil, token)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.Request(http.MethodPatch, "/api/admin/cards/"+first.ID, map[string]string{"status": "archived"}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = env.Request(http.MethodPatch, "/api/admin/cards/"+first.ID, map[string]string{"status": "inactive"}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var patched cardPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &patched)
	require.Equal(t, "inactive", patched.Status)

	resp = env.Request(http.MethodPost, "/api/admin/cards/"+first.ID+"/refresh", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Equal(t, 2, env.Upstream.Hits("/one"))

	resp = env.Request(http.MethodDelete, "/api/admin/cards/"+first.ID, nil, token)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.Request(http.MethodGet, "/api/admin/cards/"+first.ID, nil, token)
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAdminClickStatsAndExport(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login().Token
	card := loadCard(t, env, env.Upstream.Serve("/post", examplePage))

	for i := 0; i < 3; i++ {
		resp := env.RequestWithHeaders(http.MethodGet, "/c/"+card.ID, nil, "", map[string]string{
			"Referer": "https://news.example.net/item",
		})
		require.Equal(t, http.StatusFound, resp.Code)
	}

	resp := env.Request(http.MethodGet, "/api/admin/cards/"+card.ID+"/stats?days=7", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var stats services.ClickStats
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &stats)
	require.EqualValues(t, 3, stats.Total)
	require.Equal(t, 7, stats.Days)
	require.NotEmpty(t, stats.TopReferrers)
	require.Equal(t, "news.example.net", stats.TopReferrers[0].Host)

	resp = env.Request(http.MethodGet, "/api/admin/cards/"+card.ID+"/clicks.csv", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	require.True(t, strings.HasPrefix(resp.Header().Get("Content-Type"), "text/csv"))
	require.Contains(t, resp.Header().Get("Content-Disposition"), card.ID)

	records, err := csv.NewReader(strings.NewReader(resp.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	require.Equal(t, "id", records[0][0])

	resp = env.Request(http.MethodGet, "/api/admin/cards/missing/clicks.csv", nil, token)
	require.Equal(t, http.StatusNotFound, resp.Code)
	require.Contains(t, resp.Header().Get("Content-Type"), "application/json")
}

func TestAdminCacheClear(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login().Token
	one := env.Upstream.Serve("/one", examplePage)
	two := env.Upstream.Serve("/two", examplePage)
	loadCard(t, env, one)
	loadCard(t, env, two)

	resp := env.Request(http.MethodPost, "/api/admin/cache/clear", map[string]string{"url": one}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	loadCard(t, env, one)
	loadCard(t, env, two)
	require.Equal(t, 2, env.Upstream.Hits("/one"))
	require.Equal(t, 1, env.Upstream.Hits("/two"))

	resp = env.Request(http.MethodPost, "/api/admin/cache/clear", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var cleared struct {
		Removed int64 `json:"removed"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &cleared)
	require.EqualValues(t, 2, cleared.Removed)

	resp = env.Request(http.MethodPost, "/api/admin/cache/clear", map[string]string{"url": "nope"}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminSettings(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login().Token

	resp := env.Request(http.MethodGet, "/api/admin/settings", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	var current services.CardSettings
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &current)
	require.Equal(t, services.DefaultCardSettings().CacheTTLHours, current.CacheTTLHours)

	resp = env.Request(http.MethodPut, "/api/admin/settings", map[string]any{"cache_ttl_hours": 0}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	body := testutil.DecodeResponse(t, resp)
	require.Contains(t, body.Error.Message, services.SettingCacheTTLHours)

	resp = env.Request(http.MethodPut, "/api/admin/settings", map[string]any{
		"cache_ttl_hours":          24,
		"open_in_new_tab":          false,
		"proxy_filter_block_paths": []string{"/private"},
	}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var updated services.CardSettings
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &updated)
	require.Equal(t, 24, updated.CacheTTLHours)
	require.False(t, updated.OpenInNewTab)
	require.Equal(t, []string{"/private"}, updated.BlockPaths)

	// The fetcher picks up the new filter without a restart.
	card := loadCard(t, env, env.Upstream.Serve("/private/page", examplePage))
	require.True(t, card.Failed)
	require.Zero(t, env.Upstream.Hits("/private/page"))

	resp = env.Request(http.MethodPut, "/api/admin/settings", map[string]any{"proxy_filter_mode": "denylist"}, token)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminSettingsBlockPrivateStopsLoopbackFetches(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Login().Token
	url := env.Upstream.Serve("/internal", examplePage)

	resp := env.Request(http.MethodPut, "/api/admin/settings", map[string]any{"proxy_filter_block_private": true}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var updated services.CardSettings
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &updated)
	require.True(t, updated.BlockPrivate)

	card := loadCard(t, env, url)
	require.True(t, card.Failed)
	require.Zero(t, env.Upstream.Hits("/internal"))

	resp = env.Request(http.MethodPut, "/api/admin/settings", map[string]any{"proxy_filter_block_private": false}, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// The blocked result stays negatively cached, so use a fresh page.
	card = loadCard(t, env, env.Upstream.Serve("/internal/next", examplePage))
	require.False(t, card.Failed)
	require.Equal(t, 1, env.Upstream.Hits("/internal/next"))
}
