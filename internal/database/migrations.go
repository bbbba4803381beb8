package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/linkcard/internal/models"
)

// Models lists every persistent model in migration order.
func Models() []any {
	return []any{
		&models.Card{},
		&models.Click{},
		&models.CacheEntry{},
		&models.SystemSetting{},
		&models.FriendLink{},
	}
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
