package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/linkcard/internal/models"
)

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	value, _, err := LookupSystemSetting(ctx, db, key)
	return value, err
}

// LookupSystemSetting is GetSystemSetting that also reports whether the key exists.
func LookupSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, bool, error) {
	if db == nil {
		return "", false, fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: "key"}, Value: key}).
		Take(&setting).Error
	if err == nil {
		return setting.Value, true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", false, nil
	}
	return "", false, fmt.Errorf("system settings: get %q: %w", key, err)
}

// ListSystemSettings returns every stored setting whose key starts with prefix.
func ListSystemSettings(ctx context.Context, db *gorm.DB, prefix string) (map[string]string, error) {
	if db == nil {
		return nil, fmt.Errorf("system settings: db is nil")
	}

	var rows []models.SystemSetting
	query := db.WithContext(ctx).Model(&models.SystemSetting{})
	if prefix != "" {
		query = query.Where(clause.Like{Column: clause.Column{Name: "key"}, Value: prefix + "%"})
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("system settings: list %q: %w", prefix, err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// UpsertSystemSettings writes several settings in one transaction.
func UpsertSystemSettings(ctx context.Context, db *gorm.DB, values map[string]string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	if len(values) == 0 {
		return nil
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range sortedKeys(values) {
			if err := UpsertSystemSetting(ctx, tx, key, values[key]); err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedSystemSettings inserts defaults for keys that have never been stored.
func SeedSystemSettings(db *gorm.DB, defaults map[string]string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	for _, key := range sortedKeys(defaults) {
		record := models.SystemSetting{Key: key, Value: defaults[key]}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
			return fmt.Errorf("system settings: seed %q: %w", key, err)
		}
	}
	return nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
