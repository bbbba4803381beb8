package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitConfiguresGlobalLogger(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	require.NoError(t, Init("debug"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))
}

func TestInitFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { Set(nil) })

	require.NoError(t, Init("chatty"))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestLoggingHelpersEmitEntries(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	t.Cleanup(func() { Set(nil) })
	Set(zap.New(core))

	Info("info message", zap.String("k", "v"))
	Error("error message")
	Warn("warn message")
	Debug("debug message")

	entries := recorded.All()
	require.Len(t, entries, 4)

	want := []string{"info message", "error message", "warn message", "debug message"}
	for i, entry := range entries {
		require.Equal(t, want[i], entry.Message)
	}
	require.Equal(t, "v", entries[0].ContextMap()["k"])
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { Set(nil) })
	Set(zap.New(core))

	WithModule("fetch").Info("module test")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "fetch", entries[0].ContextMap()["module"])
}

func TestRedactMasksSensitiveKeys(t *testing.T) {
	out := Redact(map[string]string{
		"Authorization":   "Bearer abc",
		"admin_password":  "hunter2",
		"jwt.secret":      "s3cr3t",
		"api_key":         "k",
		"cache.redis.key": "k2",
		"User-Agent":      "Mozilla/5.0",
		"url":             "https://example.com",
	})

	require.Equal(t, RedactedValue, out["Authorization"])
	require.Equal(t, RedactedValue, out["admin_password"])
	require.Equal(t, RedactedValue, out["jwt.secret"])
	require.Equal(t, RedactedValue, out["api_key"])
	require.Equal(t, RedactedValue, out["cache.redis.key"])
	require.Equal(t, "Mozilla/5.0", out["User-Agent"])
	require.Equal(t, "https://example.com", out["url"])
	require.Nil(t, Redact(nil))
}

func TestRedactedFieldEncodesMaskedMap(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { Set(nil) })
	Set(zap.New(core))

	Info("settings updated", Redacted("values", map[string]string{"token": "abc", "mode": "allowlist"}))

	entries := recorded.All()
	require.Len(t, entries, 1)
	values, ok := entries[0].ContextMap()["values"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, RedactedValue, values["token"])
	require.Equal(t, "allowlist", values["mode"])
}
