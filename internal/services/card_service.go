package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/extract"
	"github.com/charlesng35/linkcard/internal/fetch"
	"github.com/charlesng35/linkcard/internal/models"
	"github.com/charlesng35/linkcard/pkg/crypto"
	"github.com/charlesng35/linkcard/pkg/logger"
	"github.com/charlesng35/linkcard/pkg/metrics"
)

const (
	// CardCachePrefix namespaces card payloads in the cache store.
	CardCachePrefix = "card:"

	FailedTitle       = "Failed to load"
	FailedDescription = "Unable to fetch content from this URL"

	// FailedCardTTL is how long a synthetic failure record is served before
	// the URL is fetched again.
	FailedCardTTL = 5 * time.Minute
)

const normalizeFlags = purell.FlagsSafe | purell.FlagRemoveDotSegments | purell.FlagRemoveFragment

// PageFetcher downloads a page body.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// CardSettingsProvider exposes the current card settings.
type CardSettingsProvider interface {
	CardSettings(ctx context.Context) (CardSettings, error)
}

// CardListOptions controls pagination and filtering for admin listings.
type CardListOptions struct {
	Page    int
	PerPage int
	Search  string
	Status  string
}

// CardService resolves URLs into link-preview cards, backed by the cache
// store and the cards table.
type CardService struct {
	db       *gorm.DB
	cache    cache.Store
	fetcher  PageFetcher
	settings CardSettingsProvider
	log      *zap.Logger
	now      func() time.Time
}

// NewCardService wires the card pipeline.
func NewCardService(db *gorm.DB, store cache.Store, fetcher PageFetcher, settings CardSettingsProvider) (*CardService, error) {
	switch {
	case db == nil:
		return nil, errors.New("card service: db is required")
	case store == nil:
		return nil, errors.New("card service: cache store is required")
	case fetcher == nil:
		return nil, errors.New("card service: fetcher is required")
	case settings == nil:
		return nil, errors.New("card service: settings provider is required")
	}
	return &CardService{
		db:       db,
		cache:    store,
		fetcher:  fetcher,
		settings: settings,
		log:      logger.WithModule("cards"),
		now:      time.Now,
	}, nil
}

// NormalizeURL trims raw, requires an absolute http(s) URL and canonicalises
// it so equivalent spellings share one card.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	normalized := purell.NormalizeURL(parsed, normalizeFlags)
	if len(normalized) > models.MaxURLLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidURL, models.MaxURLLength)
	}
	return normalized, nil
}

// CacheKey returns the cache key of an already normalised URL.
func CacheKey(normalizedURL string) string {
	return CardCachePrefix + crypto.MD5Hex(normalizedURL)
}

// GetCardData returns the card for rawURL. Fetch failures never surface as
// errors; they yield a synthetic record with Failed set.
func (s *CardService) GetCardData(ctx context.Context, rawURL string) (*models.Card, error) {
	ctx = ensureContext(ctx)

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	key := CacheKey(normalized)

	if card, ok := s.lookup(ctx, key); ok {
		return card, nil
	}

	settings := s.currentSettings(ctx)
	return s.fetchAndStore(ctx, normalized, key, settings), nil
}

// Get returns a card by id.
func (s *CardService) Get(ctx context.Context, id string) (*models.Card, error) {
	ctx = ensureContext(ctx)

	var card models.Card
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("card service: get card: %w", err)
	}
	return &card, nil
}

// List returns a page of cards, newest first.
func (s *CardService) List(ctx context.Context, opts CardListOptions) ([]models.Card, int64, error) {
	ctx = ensureContext(ctx)
	page, perPage := normalisePage(opts.Page, opts.PerPage)

	query := s.db.WithContext(ctx).Model(&models.Card{})
	if search := strings.TrimSpace(opts.Search); search != "" {
		pattern := likePattern(search)
		query = query.Where("LOWER(url) LIKE ? OR LOWER(title) LIKE ?", pattern, pattern)
	}
	if status := strings.ToLower(strings.TrimSpace(opts.Status)); status != "" {
		if !models.ValidCardStatus(status) {
			return nil, 0, ErrInvalidStatus
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("card service: count cards: %w", err)
	}

	var cards []models.Card
	if err := query.
		Order("updated_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&cards).Error; err != nil {
		return nil, 0, fmt.Errorf("card service: list cards: %w", err)
	}
	return cards, total, nil
}

// SetStatus activates or deactivates a card and evicts its cached payload.
func (s *CardService) SetStatus(ctx context.Context, id, status string) (*models.Card, error) {
	ctx = ensureContext(ctx)

	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidCardStatus(status) {
		return nil, ErrInvalidStatus
	}

	card, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(card).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("card service: update status: %w", err)
	}
	card.Status = status
	s.evict(ctx, card.URL)
	return card, nil
}

// Delete removes a card, its clicks and its cached payload.
func (s *CardService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	card, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("card_id = ?", card.ID).Delete(&models.Click{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Card{}, "id = ?", card.ID).Error
	})
	if err != nil {
		return fmt.Errorf("card service: delete card: %w", err)
	}

	s.evict(ctx, card.URL)
	return nil
}

// Refresh evicts the cached payload of a card and fetches it again.
func (s *CardService) Refresh(ctx context.Context, id string) (*models.Card, error) {
	ctx = ensureContext(ctx)

	card, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.evict(ctx, card.URL)
	return s.fetchAndStore(ctx, card.URL, CacheKey(card.URL), s.currentSettings(ctx)), nil
}

// ClearCache evicts the cached payload of one URL.
func (s *CardService) ClearCache(ctx context.Context, rawURL string) error {
	ctx = ensureContext(ctx)

	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, CacheKey(normalized)); err != nil {
		return fmt.Errorf("card service: clear cache: %w", err)
	}
	return nil
}

// PurgeCache evicts every cached card payload.
func (s *CardService) PurgeCache(ctx context.Context) (int64, error) {
	removed, err := s.cache.DeletePrefix(ensureContext(ctx), CardCachePrefix)
	if err != nil {
		return removed, fmt.Errorf("card service: purge cache: %w", err)
	}
	s.log.Info("card cache purged", zap.Int64("removed", removed))
	return removed, nil
}

func (s *CardService) lookup(ctx context.Context, key string) (*models.Card, bool) {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CardCacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("card cache lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		metrics.CardCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}

	var card models.Card
	if err := json.Unmarshal(payload, &card); err != nil {
		metrics.CardCacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("discarding corrupt card cache entry", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return nil, false
	}
	metrics.CardCacheLookups.WithLabelValues("hit").Inc()
	return &card, true
}

func (s *CardService) fetchAndStore(ctx context.Context, normalized, key string, settings CardSettings) *models.Card {
	start := s.now()
	page, err := s.fetcher.Fetch(ctx, normalized)
	metrics.CardFetchDuration.Observe(s.now().Sub(start).Seconds())

	if err != nil {
		kind := fetch.KindOf(err)
		if kind == "" {
			kind = fetch.KindTransport
		}
		metrics.CardFetches.WithLabelValues(string(kind)).Inc()
		s.log.Warn("card fetch failed", zap.String("url", normalized), zap.String("kind", string(kind)), zap.Error(err))

		card := failedCard(normalized)
		s.store(ctx, key, card, FailedCardTTL)
		return card
	}
	metrics.CardFetches.WithLabelValues("success").Inc()

	meta := extract.Extract(page.Text(), page.URL)
	card := &models.Card{
		URL:         normalized,
		Title:       truncate(meta.Title, 512),
		Description: meta.Description,
		ImageURL:    meta.Image,
		IconURL:     meta.Icon,
		SiteName:    truncate(meta.SiteName, 255),
		Status:      models.CardStatusActive,
	}
	if page.URL != "" && page.URL != normalized {
		card.Extra = datatypes.JSONMap{"final_url": page.URL}
	}

	if err := s.upsert(ctx, card); err != nil {
		s.log.Error("card upsert failed", zap.String("url", normalized), zap.Error(err))
		card.ID = ""
	}
	s.store(ctx, key, card, settings.CacheTTL())
	return card
}

// upsert writes the card row keyed by URL, leaving status and created_at of
// an existing row untouched, then reloads it so card carries the stored ID.
func (s *CardService) upsert(ctx context.Context, card *models.Card) error {
	card.Normalise()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "image_url", "icon_url", "site_name", "extra", "updated_at",
		}),
	}).Create(card).Error
	if err != nil {
		return err
	}

	var stored models.Card
	if err := s.db.WithContext(ctx).Where("url = ?", card.URL).Take(&stored).Error; err != nil {
		return err
	}
	*card = stored
	return nil
}

func (s *CardService) store(ctx context.Context, key string, card *models.Card, ttl time.Duration) {
	payload, err := json.Marshal(card)
	if err != nil {
		s.log.Error("card encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, payload, ttl); err != nil {
		s.log.Warn("card cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *CardService) evict(ctx context.Context, normalizedURL string) {
	if err := s.cache.Delete(ctx, CacheKey(normalizedURL)); err != nil {
		s.log.Warn("card cache evict failed", zap.String("url", normalizedURL), zap.Error(err))
	}
}

func (s *CardService) currentSettings(ctx context.Context) CardSettings {
	settings, err := s.settings.CardSettings(ctx)
	if err != nil {
		s.log.Warn("falling back to default card settings", zap.Error(err))
		return DefaultCardSettings()
	}
	return settings
}

func failedCard(normalized string) *models.Card {
	return &models.Card{
		URL:         normalized,
		Title:       FailedTitle,
		Description: FailedDescription,
		IconURL:     extract.FaviconGuess(normalized),
		Status:      models.CardStatusActive,
		Failed:      true,
	}
}
