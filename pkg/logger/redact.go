package logger

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RedactedValue replaces the value of any sensitive key.
const RedactedValue = "[REDACTED]"

var sensitiveKeyFragments = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"authorization",
	"cookie",
	"api_key",
	"apikey",
	"private_key",
}

// IsSensitiveKey reports whether key names a credential-like value.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	if lower == "key" || strings.HasSuffix(lower, "_key") || strings.HasSuffix(lower, ".key") {
		return true
	}
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Redact returns a copy of values with sensitive entries masked.
func Redact(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if IsSensitiveKey(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

// Redacted builds a zap object field from values with sensitive keys masked.
func Redacted(key string, values map[string]string) zap.Field {
	return zap.Object(key, redactedMap(Redact(values)))
}

type redactedMap map[string]string

func (m redactedMap) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		enc.AddString(k, m[k])
	}
	return nil
}
