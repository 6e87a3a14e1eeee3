package models

import (
	"time"
)

// SiteConfig is the per-tenant configuration the pipeline reads but never
// writes. It travels inline in every generation job payload so workers do
// not need an extra lookup.
type SiteConfig struct {
	TenantID    string      `gorm:"primaryKey;size:255" json:"tenantId"`
	Title       string      `gorm:"size:500" json:"title"`
	AuthorName  string      `gorm:"size:255" json:"authorName"`
	AuthorEmail string      `gorm:"size:255" json:"authorEmail"`
	AuthorURL   string      `gorm:"size:512" json:"authorUrl,omitempty"`
	Pings       StringArray `gorm:"type:text[]" json:"pings,omitempty"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"-"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"-"`
}

func (SiteConfig) TableName() string {
	return "site_configs"
}

// BaseURL is the canonical root URL of the tenant's site.
func (c *SiteConfig) BaseURL() string {
	return "https://" + c.TenantID + "/"
}
