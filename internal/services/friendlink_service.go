package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/cache"
	"github.com/charlesng35/linkcard/internal/models"
	"github.com/charlesng35/linkcard/pkg/logger"
	"github.com/charlesng35/linkcard/pkg/metrics"
)

// FeedCachePrefix namespaces cached feed items in the cache store.
const FeedCachePrefix = "friendlink:feed:"

// FriendLinkConfig tunes the feed reader.
type FriendLinkConfig struct {
	FeedTimeout     time.Duration
	FeedTTL         time.Duration
	ItemsPerFeed    int
	FeedConcurrency int
}

func (c FriendLinkConfig) withDefaults() FriendLinkConfig {
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = 8 * time.Second
	}
	if c.FeedTTL <= 0 {
		c.FeedTTL = 12 * time.Hour
	}
	if c.ItemsPerFeed <= 0 {
		c.ItemsPerFeed = 5
	}
	if c.FeedConcurrency <= 0 {
		c.FeedConcurrency = 4
	}
	return c
}

// FriendLinkInput captures the fields required to create a friend link.
type FriendLinkInput struct {
	Name        string
	URL         string
	Description string
	Image       string
	RSSURL      string
	Visible     *bool
	SortOrder   int
}

// UpdateFriendLinkInput describes mutable fields. A nil pointer indicates no change.
type UpdateFriendLinkInput struct {
	Name        *string
	URL         *string
	Description *string
	Image       *string
	RSSURL      *string
	Visible     *bool
	SortOrder   *int
}

// FeedRefreshResult summarises one RefreshFeeds run.
type FeedRefreshResult struct {
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// FriendLinkService manages the links directory and its feed reader.
type FriendLinkService struct {
	db      *gorm.DB
	cache   cache.Store
	fetcher PageFetcher
	cfg     FriendLinkConfig
	log     *zap.Logger
	now     func() time.Time
}

// NewFriendLinkService wires the friend-link directory.
func NewFriendLinkService(db *gorm.DB, store cache.Store, fetcher PageFetcher, cfg FriendLinkConfig) (*FriendLinkService, error) {
	switch {
	case db == nil:
		return nil, errors.New("friend link service: db is required")
	case store == nil:
		return nil, errors.New("friend link service: cache store is required")
	case fetcher == nil:
		return nil, errors.New("friend link service: fetcher is required")
	}
	return &FriendLinkService{
		db:      db,
		cache:   store,
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		log:     logger.WithModule("friendlinks"),
		now:     time.Now,
	}, nil
}

// List returns links ordered for display. Hidden links are included only on request.
func (s *FriendLinkService) List(ctx context.Context, includeHidden bool) ([]models.FriendLink, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.FriendLink{})
	if !includeHidden {
		query = query.Where("visible = ?", true)
	}

	var links []models.FriendLink
	if err := query.Order("sort_order ASC").Order("LOWER(name) ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("friend link service: list: %w", err)
	}
	return links, nil
}

// Get returns a link by id.
func (s *FriendLinkService) Get(ctx context.Context, id string) (*models.FriendLink, error) {
	ctx = ensureContext(ctx)

	var link models.FriendLink
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFriendLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("friend link service: get: %w", err)
	}
	return &link, nil
}

// Create validates input and stores a new link.
func (s *FriendLinkService) Create(ctx context.Context, input FriendLinkInput) (*models.FriendLink, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, errors.New("friend link service: name is required")
	}
	linkURL, err := NormalizeURL(input.URL)
	if err != nil {
		return nil, err
	}
	rssURL, err := normalizeOptionalURL(input.RSSURL)
	if err != nil {
		return nil, err
	}

	visible := true
	if input.Visible != nil {
		visible = *input.Visible
	}

	link := &models.FriendLink{
		Name:        truncate(name, 120),
		URL:         linkURL,
		Description: strings.TrimSpace(input.Description),
		Image:       strings.TrimSpace(input.Image),
		RSSURL:      rssURL,
		Visible:     visible,
		SortOrder:   input.SortOrder,
	}

	if err := s.ensureUniqueURL(ctx, linkURL, ""); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrFriendLinkExists
		}
		return nil, fmt.Errorf("friend link service: create: %w", err)
	}
	return link, nil
}

// Update applies the non-nil fields of input.
func (s *FriendLinkService) Update(ctx context.Context, id string, input UpdateFriendLinkInput) (*models.FriendLink, error) {
	ctx = ensureContext(ctx)

	link, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, errors.New("friend link service: name is required")
		}
		updates["name"] = truncate(name, 120)
	}
	if input.URL != nil {
		linkURL, err := NormalizeURL(*input.URL)
		if err != nil {
			return nil, err
		}
		if err := s.ensureUniqueURL(ctx, linkURL, link.ID); err != nil {
			return nil, err
		}
		updates["url"] = linkURL
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Image != nil {
		updates["image"] = strings.TrimSpace(*input.Image)
	}
	if input.RSSURL != nil {
		rssURL, err := normalizeOptionalURL(*input.RSSURL)
		if err != nil {
			return nil, err
		}
		updates["rss_url"] = rssURL
	}
	if input.Visible != nil {
		updates["visible"] = *input.Visible
	}
	if input.SortOrder != nil {
		updates["sort_order"] = *input.SortOrder
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(link).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("friend link service: update: %w", err)
		}
	}
	if _, changed := updates["rss_url"]; changed {
		s.evictFeed(ctx, link.ID)
	}
	return s.Get(ctx, link.ID)
}

// Delete removes a link and its cached feed items.
func (s *FriendLinkService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	link, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.FriendLink{}, "id = ?", link.ID).Error; err != nil {
		return fmt.Errorf("friend link service: delete: %w", err)
	}
	s.evictFeed(ctx, link.ID)
	return nil
}

// RefreshFeeds re-reads the feed of every visible link that has one. A
// failing feed is logged and counted without stopping the others.
func (s *FriendLinkService) RefreshFeeds(ctx context.Context) (FeedRefreshResult, error) {
	ctx = ensureContext(ctx)

	var links []models.FriendLink
	if err := s.db.WithContext(ctx).
		Where("visible = ? AND rss_url <> ?", true, "").
		Find(&links).Error; err != nil {
		return FeedRefreshResult{}, fmt.Errorf("friend link service: load feeds: %w", err)
	}

	var refreshed, failed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.FeedConcurrency)
	for i := range links {
		link := links[i]
		group.Go(func() error {
			if _, err := s.refreshOne(groupCtx, &link); err != nil {
				failed.Add(1)
				s.log.Warn("feed refresh failed",
					zap.String("link_id", link.ID),
					zap.String("rss_url", link.RSSURL),
					zap.Error(err),
				)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = group.Wait()

	result := FeedRefreshResult{Refreshed: int(refreshed.Load()), Failed: int(failed.Load())}
	s.log.Info("feed refresh complete", zap.Int("refreshed", result.Refreshed), zap.Int("failed", result.Failed))
	return result, ctx.Err()
}

// LatestPosts returns the cached items of a link's feed, fetching the feed on
// a cache miss. A feed that cannot be read yields an empty list.
func (s *FriendLinkService) LatestPosts(ctx context.Context, id string) ([]FeedItem, error) {
	ctx = ensureContext(ctx)

	link, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.RSSURL == "" || !link.Visible {
		return []FeedItem{}, nil
	}

	payload, ok, err := s.cache.Get(ctx, feedKey(link.ID))
	if err != nil {
		s.log.Warn("feed cache lookup failed", zap.String("link_id", link.ID), zap.Error(err))
	}
	if ok {
		var items []FeedItem
		if err := json.Unmarshal(payload, &items); err == nil {
			return items, nil
		}
	}

	items, err := s.refreshOne(ctx, link)
	if err != nil {
		s.log.Warn("feed read-through failed", zap.String("link_id", link.ID), zap.Error(err))
		return []FeedItem{}, nil
	}
	return items, nil
}

func (s *FriendLinkService) refreshOne(ctx context.Context, link *models.FriendLink) ([]FeedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FeedTimeout)
	defer cancel()

	page, err := s.fetcher.Fetch(ctx, link.RSSURL)
	if err != nil {
		metrics.FeedRefreshes.WithLabelValues("failure").Inc()
		return nil, err
	}
	items, err := ParseFeed(page.Body, s.cfg.ItemsPerFeed)
	if err != nil {
		metrics.FeedRefreshes.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if items == nil {
		items = []FeedItem{}
	}
	metrics.FeedRefreshes.WithLabelValues("success").Inc()

	payload, err := json.Marshal(items)
	if err == nil {
		if err := s.cache.Set(ctx, feedKey(link.ID), payload, s.cfg.FeedTTL); err != nil {
			s.log.Warn("feed cache write failed", zap.String("link_id", link.ID), zap.Error(err))
		}
	}

	fetchedAt := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&models.FriendLink{}).
		Where("id = ?", link.ID).
		UpdateColumn("last_fetched_at", fetchedAt).Error; err != nil {
		s.log.Warn("feed timestamp update failed", zap.String("link_id", link.ID), zap.Error(err))
	}
	link.LastFetchedAt = &fetchedAt
	return items, nil
}

func (s *FriendLinkService) ensureUniqueURL(ctx context.Context, linkURL, exceptID string) error {
	query := s.db.WithContext(ctx).Model(&models.FriendLink{}).Where("url = ?", linkURL)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("friend link service: check url: %w", err)
	}
	if count > 0 {
		return ErrFriendLinkExists
	}
	return nil
}

func (s *FriendLinkService) evictFeed(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, feedKey(id)); err != nil {
		s.log.Warn("feed cache evict failed", zap.String("link_id", id), zap.Error(err))
	}
}

func feedKey(id string) string {
	return FeedCachePrefix + id
}

func normalizeOptionalURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return NormalizeURL(raw)
}
