package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/database"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/pkg/logger"
)

// Setting keys persisted in system_settings.
const (
	SettingCacheTTLHours       = "card.cache_ttl_hours"
	SettingFetchTimeoutSeconds = "card.fetch_timeout_seconds"
	SettingOpenInNewTab        = "card.open_in_new_tab"
	SettingTrackClicks         = "card.track_clicks"
	SettingFilterMode          = "proxy_filter.mode"
	SettingAllowDomains        = "proxy_filter.allow_domains"
	SettingBlockDomains        = "proxy_filter.block_domains"
	SettingBlockPaths          = "proxy_filter.block_paths"
	SettingBlockPrivate        = "proxy_filter.block_private"
)

const (
	minCacheTTLHours     = 1
	maxCacheTTLHours     = 720
	defaultCacheTTLHours = 72
	minFetchTimeout      = 1
	maxFetchTimeout      = 60
	defaultFetchTimeout  = 15
)

// CardSettings is the runtime-editable configuration of the card pipeline
// and its outbound request filter.
type CardSettings struct {
	CacheTTLHours       int      `json:"cache_ttl_hours"`
	FetchTimeoutSeconds int      `json:"fetch_timeout_seconds"`
	OpenInNewTab        bool     `json:"open_in_new_tab"`
	TrackClicks         bool     `json:"track_clicks"`
	FilterMode          string   `json:"proxy_filter_mode"`
	AllowDomains        []string `json:"proxy_filter_allow_domains"`
	BlockDomains        []string `json:"proxy_filter_block_domains"`
	BlockPaths          []string `json:"proxy_filter_block_paths"`
	BlockPrivate        bool     `json:"proxy_filter_block_private"`
}

// DefaultCardSettings returns the built-in defaults.
func DefaultCardSettings() CardSettings {
	return CardSettings{
		CacheTTLHours:       defaultCacheTTLHours,
		FetchTimeoutSeconds: defaultFetchTimeout,
		OpenInNewTab:        true,
		TrackClicks:         true,
		FilterMode:          string(fetch.ModeAllowAll),
		AllowDomains:        []string{},
		BlockDomains:        []string{},
		BlockPaths:          []string{},
		BlockPrivate:        true,
	}
}

// CacheTTL returns the card cache lifetime.
func (c CardSettings) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// FetchTimeout returns the upstream fetch timeout.
func (c CardSettings) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Filter builds the outbound request filter described by the settings.
func (c CardSettings) Filter() *fetch.Filter {
	mode, err := fetch.ParseMode(c.FilterMode)
	if err != nil {
		mode = fetch.ModeAllowAll
	}
	return &fetch.Filter{
		Mode:         mode,
		AllowDomains: append([]string(nil), c.AllowDomains...),
		BlockDomains: append([]string(nil), c.BlockDomains...),
		BlockPaths:   append([]string(nil), c.BlockPaths...),
		BlockPrivate: c.BlockPrivate,
	}
}

// Values flattens the settings into their stored string form.
func (c CardSettings) Values() map[string]string {
	return map[string]string{
		SettingCacheTTLHours:       strconv.Itoa(c.CacheTTLHours),
		SettingFetchTimeoutSeconds: strconv.Itoa(c.FetchTimeoutSeconds),
		SettingOpenInNewTab:        strconv.FormatBool(c.OpenInNewTab),
		SettingTrackClicks:         strconv.FormatBool(c.TrackClicks),
		SettingFilterMode:          c.FilterMode,
		SettingAllowDomains:        strings.Join(c.AllowDomains, ","),
		SettingBlockDomains:        strings.Join(c.BlockDomains, ","),
		SettingBlockPaths:          strings.Join(c.BlockPaths, ","),
		SettingBlockPrivate:        strconv.FormatBool(c.BlockPrivate),
	}
}

// Validate reports the first out-of-range value as ErrInvalidSetting.
func (c CardSettings) Validate() error {
	if c.CacheTTLHours < minCacheTTLHours || c.CacheTTLHours > maxCacheTTLHours {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidSetting, SettingCacheTTLHours, minCacheTTLHours, maxCacheTTLHours)
	}
	if c.FetchTimeoutSeconds < minFetchTimeout || c.FetchTimeoutSeconds > maxFetchTimeout {
		return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidSetting, SettingFetchTimeoutSeconds, minFetchTimeout, maxFetchTimeout)
	}
	if _, err := fetch.ParseMode(c.FilterMode); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSetting, SettingFilterMode, err)
	}
	for _, path := range c.BlockPaths {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%w: %s entries must start with '/'", ErrInvalidSetting, SettingBlockPaths)
		}
	}
	return nil
}

// UpdateCardSettingsInput describes mutable settings. A nil pointer indicates no change.
type UpdateCardSettingsInput struct {
	CacheTTLHours       *int      `json:"cache_ttl_hours"`
	FetchTimeoutSeconds *int      `json:"fetch_timeout_seconds"`
	OpenInNewTab        *bool     `json:"open_in_new_tab"`
	TrackClicks         *bool     `json:"track_clicks"`
	FilterMode          *string   `json:"proxy_filter_mode"`
	AllowDomains        *[]string `json:"proxy_filter_allow_domains"`
	BlockDomains        *[]string `json:"proxy_filter_block_domains"`
	BlockPaths          *[]string `json:"proxy_filter_block_paths"`
	BlockPrivate        *bool     `json:"proxy_filter_block_private"`
}

// SettingsService reads and writes the options table. The parsed snapshot is
// kept in memory and refreshed on every update.
type SettingsService struct {
	db  *gorm.DB
	log *zap.Logger

	mu        sync.RWMutex
	current   CardSettings
	loaded    bool
	listeners []func(CardSettings)
}

// NewSettingsService constructs a settings service once a database handle is supplied.
func NewSettingsService(db *gorm.DB) (*SettingsService, error) {
	if db == nil {
		return nil, errors.New("settings service: db is required")
	}
	return &SettingsService{db: db, log: logger.WithModule("settings")}, nil
}

// Seed stores defaults for keys that have never been written.
func (s *SettingsService) Seed(ctx context.Context, defaults CardSettings) error {
	if err := defaults.Validate(); err != nil {
		return err
	}
	if err := database.SeedSystemSettings(s.db.WithContext(ensureContext(ctx)), defaults.Values()); err != nil {
		return fmt.Errorf("settings service: seed: %w", err)
	}
	_, err := s.Reload(ctx)
	return err
}

// OnChange registers fn to be called with the new snapshot after each update.
func (s *SettingsService) OnChange(fn func(CardSettings)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// CardSettings returns the current snapshot, loading it on first use.
func (s *SettingsService) CardSettings(ctx context.Context) (CardSettings, error) {
	s.mu.RLock()
	if s.loaded {
		current := s.current
		s.mu.RUnlock()
		return current, nil
	}
	s.mu.RUnlock()
	return s.Reload(ctx)
}

// Reload re-reads the stored values. Unparseable values fall back to their
// defaults and out-of-range numbers are clamped.
func (s *SettingsService) Reload(ctx context.Context) (CardSettings, error) {
	values, err := database.ListSystemSettings(ensureContext(ctx), s.db, "")
	if err != nil {
		return DefaultCardSettings(), fmt.Errorf("settings service: load: %w", err)
	}

	settings := s.parse(values)

	s.mu.Lock()
	s.current = settings
	s.loaded = true
	s.mu.Unlock()

	return settings, nil
}

// UpdateCardSettings validates and persists input, then notifies listeners.
func (s *SettingsService) UpdateCardSettings(ctx context.Context, input UpdateCardSettingsInput) (CardSettings, error) {
	ctx = ensureContext(ctx)

	current, err := s.CardSettings(ctx)
	if err != nil {
		return CardSettings{}, err
	}

	next := current
	if input.CacheTTLHours != nil {
		next.CacheTTLHours = *input.CacheTTLHours
	}
	if input.FetchTimeoutSeconds != nil {
		next.FetchTimeoutSeconds = *input.FetchTimeoutSeconds
	}
	if input.OpenInNewTab != nil {
		next.OpenInNewTab = *input.OpenInNewTab
	}
	if input.TrackClicks != nil {
		next.TrackClicks = *input.TrackClicks
	}
	if input.FilterMode != nil {
		mode, err := fetch.ParseMode(*input.FilterMode)
		if err != nil {
			return CardSettings{}, fmt.Errorf("%w: %s: %v", ErrInvalidSetting, SettingFilterMode, err)
		}
		next.FilterMode = string(mode)
	}
	if input.AllowDomains != nil {
		next.AllowDomains = cleanList(*input.AllowDomains, true)
	}
	if input.BlockDomains != nil {
		next.BlockDomains = cleanList(*input.BlockDomains, true)
	}
	if input.BlockPaths != nil {
		next.BlockPaths = cleanList(*input.BlockPaths, false)
	}
	if input.BlockPrivate != nil {
		next.BlockPrivate = *input.BlockPrivate
	}

	if err := next.Validate(); err != nil {
		return CardSettings{}, err
	}

	if err := database.UpsertSystemSettings(ctx, s.db, next.Values()); err != nil {
		return CardSettings{}, fmt.Errorf("settings service: update: %w", err)
	}

	s.mu.Lock()
	s.current = next
	s.loaded = true
	listeners := append([]func(CardSettings){}, s.listeners...)
	s.mu.Unlock()

	s.log.Info("card settings updated", logger.Redacted("values", next.Values()))
	for _, fn := range listeners {
		fn(next)
	}
	return next, nil
}

func (s *SettingsService) parse(values map[string]string) CardSettings {
	settings := DefaultCardSettings()

	if raw, ok := values[SettingCacheTTLHours]; ok {
		settings.CacheTTLHours = clamp(s.parseInt(SettingCacheTTLHours, raw, defaultCacheTTLHours), minCacheTTLHours, maxCacheTTLHours)
	}
	if raw, ok := values[SettingFetchTimeoutSeconds]; ok {
		settings.FetchTimeoutSeconds = clamp(s.parseInt(SettingFetchTimeoutSeconds, raw, defaultFetchTimeout), minFetchTimeout, maxFetchTimeout)
	}
	if raw, ok := values[SettingOpenInNewTab]; ok {
		settings.OpenInNewTab = s.parseBool(SettingOpenInNewTab, raw, settings.OpenInNewTab)
	}
	if raw, ok := values[SettingTrackClicks]; ok {
		settings.TrackClicks = s.parseBool(SettingTrackClicks, raw, settings.TrackClicks)
	}
	if raw, ok := values[SettingFilterMode]; ok {
		if mode, err := fetch.ParseMode(raw); err == nil {
			settings.FilterMode = string(mode)
		} else {
			s.log.Warn("ignoring stored setting", zap.String("key", SettingFilterMode), zap.Error(err))
		}
	}
	settings.AllowDomains = cleanList(fetch.SplitList(values[SettingAllowDomains]), true)
	settings.BlockDomains = cleanList(fetch.SplitList(values[SettingBlockDomains]), true)
	settings.BlockPaths = cleanList(fetch.SplitList(values[SettingBlockPaths]), false)
	if raw, ok := values[SettingBlockPrivate]; ok {
		settings.BlockPrivate = s.parseBool(SettingBlockPrivate, raw, settings.BlockPrivate)
	}

	return settings
}

func (s *SettingsService) parseInt(key, raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		s.log.Warn("ignoring stored setting", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return value
}

func (s *SettingsService) parseBool(key, raw string, fallback bool) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		s.log.Warn("ignoring stored setting", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return value
}

func cleanList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if lower {
			value = strings.ToLower(value)
		}
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}
