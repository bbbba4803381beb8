package models

import (
	"strings"

	"gorm.io/datatypes"
)

// Card status values.
const (
	CardStatusActive   = "active"
	CardStatusInactive = "inactive"
)

// MaxURLLength bounds the indexed url column across all supported dialects.
const MaxURLLength = 768

// Card is the persistent mirror of a fetched link preview. One row exists per
// normalised URL.
type Card struct {
	BaseModel

	URL         string            `gorm:"type:varchar(768);not null;uniqueIndex" json:"url"`
	Title       string            `gorm:"type:varchar(512);not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	ImageURL    string            `gorm:"type:text" json:"image_url"`
	IconURL     string            `gorm:"type:text" json:"icon_url"`
	SiteName    string            `gorm:"type:varchar(255)" json:"site_name"`
	Status      string            `gorm:"type:varchar(20);not null;default:active;index" json:"status"`
	Extra       datatypes.JSONMap `json:"extra,omitempty"`

	// Failed marks a synthetic record produced when the page could not be
	// fetched. Such records are never stored in the cards table.
	Failed bool `gorm:"-" json:"failed,omitempty"`
}

// IsActive reports whether the card may be served and clicked.
func (c *Card) IsActive() bool {
	return c.Status == "" || c.Status == CardStatusActive
}

// Normalise lower-cases the status and applies the default.
func (c *Card) Normalise() {
	c.Status = strings.ToLower(strings.TrimSpace(c.Status))
	if c.Status == "" {
		c.Status = CardStatusActive
	}
}

// ValidCardStatus reports whether status is one of the known card states.
func ValidCardStatus(status string) bool {
	switch status {
	case CardStatusActive, CardStatusInactive:
		return true
	}
	return false
}
