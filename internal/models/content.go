package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	TypeEntry = "entry"

	PostPrefix    = "posts/"
	PagePrefix    = "pages/"
	MentionPrefix = "mentions/"

	// ArchiveCachePath is the well-known path of the derived archive index row.
	ArchiveCachePath = "cache/archive"
)

// ContentItem is one row of a tenant's content table: a post, a page, or a
// derived cache entry, keyed by (tenant_id, path). The typed columns cover
// the fields the pipeline acts on; everything else an authoring client sent
// lives in Properties.
type ContentItem struct {
	TenantID     string         `gorm:"primaryKey;size:255" json:"tenantId"`
	Path         string         `gorm:"primaryKey;size:512" json:"path"`
	Type         string         `gorm:"size:50" json:"type,omitempty"`
	Name         string         `gorm:"size:500" json:"name,omitempty"`
	Content      string         `gorm:"type:text" json:"content,omitempty"`
	Published    string         `gorm:"size:64;index" json:"published,omitempty"`
	Updated      string         `gorm:"size:64" json:"updated,omitempty"`
	MentionCount int            `json:"mentionCount,omitempty"`
	Photo        StringArray    `gorm:"type:text[]" json:"photo,omitempty"`
	Syndication  StringArray    `gorm:"type:text[]" json:"syndication,omitempty"`
	Months       StringArray    `gorm:"type:text[]" json:"months,omitempty"`
	Properties   PropertyMap    `gorm:"type:jsonb" json:"properties,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"-"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"-"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ContentItem) TableName() string {
	return "items"
}

func (i *ContentItem) IsPost() bool {
	return strings.HasPrefix(i.Path, PostPrefix)
}

func (i *ContentItem) IsPage() bool {
	return strings.HasPrefix(i.Path, PagePrefix)
}

// ShortPath strips the kind marker from the item's path.
func (i *ContentItem) ShortPath() string {
	s := strings.TrimPrefix(i.Path, PostPrefix)
	return strings.TrimPrefix(s, PagePrefix)
}

// Permalink is a pure function of the item's path: /foo/bar/
func (i *ContentItem) Permalink() string {
	return "/" + i.ShortPath() + "/"
}

// PublishedMonth returns the YYYY-MM portion of the published timestamp, or
// an empty string for unpublished items.
func (i *ContentItem) PublishedMonth() string {
	if len(i.Published) < 7 {
		return ""
	}
	return i.Published[:7]
}

// PublishedTime parses the stored ISO timestamp. Returns the zero time when
// the item is unpublished or the timestamp is malformed.
func (i *ContentItem) PublishedTime() time.Time {
	return parseISOTime(i.Published)
}

func parseISOTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// reservedKeys are the image fields mapped onto typed columns; anything else
// is kept in the Properties extension map.
var reservedKeys = map[string]bool{
	"blogId":       true,
	"tenantId":     true,
	"path":         true,
	"type":         true,
	"name":         true,
	"content":      true,
	"published":    true,
	"updated":      true,
	"mentionCount": true,
	"photo":        true,
	"syndication":  true,
	"months":       true,
}

// ItemFromImage decodes the "new image" of a mutated row into a ContentItem.
func ItemFromImage(tenantID string, image json.RawMessage) (*ContentItem, error) {
	var raw map[string]any
	if err := json.Unmarshal(image, &raw); err != nil {
		return nil, err
	}

	item := &ContentItem{TenantID: tenantID, Properties: PropertyMap{}}
	item.Path, _ = raw["path"].(string)
	item.Type, _ = raw["type"].(string)
	item.Name, _ = raw["name"].(string)
	item.Content, _ = raw["content"].(string)
	item.Published, _ = raw["published"].(string)
	item.Updated, _ = raw["updated"].(string)
	if n, ok := raw["mentionCount"].(float64); ok {
		item.MentionCount = int(n)
	}
	item.Photo = toStringArray(raw["photo"])
	item.Syndication = toStringArray(raw["syndication"])
	item.Months = toStringArray(raw["months"])

	for k, v := range raw {
		if !reservedKeys[k] {
			item.Properties[k] = v
		}
	}

	return item, nil
}

func toStringArray(v any) StringArray {
	switch vv := v.(type) {
	case []any:
		out := make(StringArray, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		// authoring clients sometimes collapse one-element lists
		return StringArray{vv}
	default:
		return nil
	}
}
