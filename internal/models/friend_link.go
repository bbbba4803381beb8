package models

import "time"

// FriendLink is an entry in the public links directory. RSSURL is optional;
// when set the feed reader keeps the latest posts cached.
type FriendLink struct {
	BaseModel

	Name          string     `gorm:"type:varchar(120);not null" json:"name"`
	URL           string     `gorm:"type:varchar(768);not null" json:"url"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	Image         string     `gorm:"type:text" json:"image,omitempty"`
	RSSURL        string     `gorm:"column:rss_url;type:text" json:"rss_url,omitempty"`
	Visible       bool       `gorm:"not null;index" json:"visible"`
	SortOrder     int        `gorm:"not null;default:0" json:"sort_order"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
}
