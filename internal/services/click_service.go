package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/models"
	"github.com/charlesng35/linkcard/pkg/metrics"
)

const (
	maxUserAgentLength = 512
	maxRefererLength   = 2048
	maxStatsDays       = 365
	defaultStatsDays   = 30
	topReferrerLimit   = 10
	exportBatchSize    = 500

	directReferrer = "(direct)"
)

// ClickInput captures request details stored with a click.
type ClickInput struct {
	IP        string
	UserAgent string
	Referer   string
}

// DailyClicks is the click count of one UTC day.
type DailyClicks struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// ReferrerClicks is the click count of one referring host.
type ReferrerClicks struct {
	Host  string `json:"host"`
	Count int64  `json:"count"`
}

// ClickStats summarises the clicks of a card.
type ClickStats struct {
	CardID       string           `json:"card_id"`
	Total        int64            `json:"total"`
	Days         int              `json:"days"`
	Daily        []DailyClicks    `json:"daily"`
	TopReferrers []ReferrerClicks `json:"top_referrers"`
}

// ClickService records and reports card click-throughs.
type ClickService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewClickService constructs a click service once a database handle is supplied.
func NewClickService(db *gorm.DB) (*ClickService, error) {
	if db == nil {
		return nil, errors.New("click service: db is required")
	}
	return &ClickService{db: db, now: time.Now}, nil
}

// RecordClick appends a click for cardID and returns its id.
func (s *ClickService) RecordClick(ctx context.Context, cardID string, input ClickInput) (string, error) {
	ctx = ensureContext(ctx)

	if err := s.ensureCard(ctx, cardID); err != nil {
		return "", err
	}

	click := models.Click{
		CardID:    strings.TrimSpace(cardID),
		IP:        truncate(input.IP, 45),
		UserAgent: truncate(input.UserAgent, maxUserAgentLength),
		Referer:   truncate(input.Referer, maxRefererLength),
		ClickedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&click).Error; err != nil {
		return "", fmt.Errorf("click service: record click: %w", err)
	}

	metrics.Clicks.Inc()
	return click.ID, nil
}

// Stats returns totals, per-day counts over the last days days (UTC, oldest
// first, zero-filled) and the most frequent referrer hosts in that window.
func (s *ClickService) Stats(ctx context.Context, cardID string, days int) (*ClickStats, error) {
	ctx = ensureContext(ctx)

	if days <= 0 {
		days = defaultStatsDays
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}
	if err := s.ensureCard(ctx, cardID); err != nil {
		return nil, err
	}

	stats := &ClickStats{CardID: cardID, Days: days}
	if err := s.db.WithContext(ctx).Model(&models.Click{}).
		Where("card_id = ?", cardID).
		Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("click service: count clicks: %w", err)
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	var rows []models.Click
	if err := s.db.WithContext(ctx).
		Select("clicked_at", "referer").
		Where("card_id = ? AND clicked_at >= ?", cardID, since).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("click service: load clicks: %w", err)
	}

	daily := make(map[string]int64, days)
	referrers := make(map[string]int64)
	for _, row := range rows {
		daily[row.ClickedAt.UTC().Format("2006-01-02")]++
		referrers[referrerHost(row.Referer)]++
	}

	stats.Daily = make([]DailyClicks, 0, days)
	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		date := day.Format("2006-01-02")
		stats.Daily = append(stats.Daily, DailyClicks{Date: date, Count: daily[date]})
	}

	stats.TopReferrers = make([]ReferrerClicks, 0, len(referrers))
	for host, count := range referrers {
		stats.TopReferrers = append(stats.TopReferrers, ReferrerClicks{Host: host, Count: count})
	}
	sort.Slice(stats.TopReferrers, func(i, j int) bool {
		a, b := stats.TopReferrers[i], stats.TopReferrers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Host < b.Host
	})
	if len(stats.TopReferrers) > topReferrerLimit {
		stats.TopReferrers = stats.TopReferrers[:topReferrerLimit]
	}

	return stats, nil
}

// ExportCSV streams every click of cardID as CSV, oldest first.
func (s *ClickService) ExportCSV(ctx context.Context, w io.Writer, cardID string) error {
	ctx = ensureContext(ctx)

	if err := s.ensureCard(ctx, cardID); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "card_id", "clicked_at", "ip", "user_agent", "referer"}); err != nil {
		return err
	}

	var batch []models.Click
	result := s.db.WithContext(ctx).
		Where("card_id = ?", cardID).
		Order("clicked_at ASC").
		FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
			for _, click := range batch {
				record := []string{
					click.ID,
					click.CardID,
					click.ClickedAt.UTC().Format(time.RFC3339),
					click.IP,
					click.UserAgent,
					click.Referer,
				}
				if err := writer.Write(record); err != nil {
					return err
				}
			}
			writer.Flush()
			return writer.Error()
		})
	if result.Error != nil {
		return fmt.Errorf("click service: export clicks: %w", result.Error)
	}

	writer.Flush()
	return writer.Error()
}

// PruneOlderThan removes clicks older than the supplied retention window (in days).
func (s *ClickService) PruneOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("click service: retentionDays must be positive")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("clicked_at < ?", cutoff).Delete(&models.Click{})
	if result.Error != nil {
		return 0, fmt.Errorf("click service: prune clicks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *ClickService) ensureCard(ctx context.Context, cardID string) error {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return ErrCardNotFound
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Card{}).Where("id = ?", cardID).Count(&count).Error; err != nil {
		return fmt.Errorf("click service: lookup card: %w", err)
	}
	if count == 0 {
		return ErrCardNotFound
	}
	return nil
}

func referrerHost(referer string) string {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return directReferrer
	}
	parsed, err := url.Parse(referer)
	if err != nil || parsed.Hostname() == "" {
		return directReferrer
	}
	return strings.ToLower(parsed.Hostname())
}
