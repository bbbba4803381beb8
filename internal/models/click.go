package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Click is an append-only record of one card click-through.
type Click struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CardID    string    `gorm:"type:uuid;not null;index" json:"card_id"`
	IP        string    `gorm:"type:varchar(45)" json:"ip"`
	UserAgent string    `gorm:"type:varchar(512)" json:"user_agent"`
	Referer   string    `gorm:"type:text" json:"referer"`
	ClickedAt time.Time `gorm:"not null;index" json:"clicked_at"`

	Card *Card `gorm:"foreignKey:CardID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeCreate assigns the identifier and timestamp when unset.
func (c *Click) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ClickedAt.IsZero() {
		c.ClickedAt = time.Now().UTC()
	}
	return nil
}
