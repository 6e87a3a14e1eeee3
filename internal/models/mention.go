package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type MentionKind string

const (
	MentionKindReply   MentionKind = "reply"
	MentionKindLike    MentionKind = "like"
	MentionKindMention MentionKind = "mention"
)

// Mention is an externally discovered backlink attached to a post. Its path
// is a pure function of (postPath, item.published, item.url), so re-ingesting
// the same source/target pair overwrites the same row.
type Mention struct {
	TenantID  string         `gorm:"primaryKey;size:255" json:"tenantId"`
	Path      string         `gorm:"primaryKey;size:1024" json:"path"`
	PostPath  string         `gorm:"size:512;index" json:"postPath"`
	Item      PropertyMap    `gorm:"type:jsonb" json:"item"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Mention) TableName() string {
	return "mentions"
}

// MentionPath derives the deterministic storage path for a mention of post.
func MentionPath(post *ContentItem, published, sourceURL string) string {
	return fmt.Sprintf("%s%s/%s-%s", MentionPrefix, post.ShortPath(), published, sourceURL)
}

// MentionPrefixForPost is the path prefix shared by all mentions of post.
func MentionPrefixForPost(post *ContentItem) string {
	return MentionPrefix + post.ShortPath() + "/"
}

func (m *Mention) URL() string {
	s, _ := m.Item["url"].(string)
	return s
}

func (m *Mention) PublishedTime() time.Time {
	s, _ := m.Item["published"].(string)
	return parseISOTime(s)
}

// Kind classifies the mention by the microformat properties it carries.
func (m *Mention) Kind() MentionKind {
	if _, ok := m.Item["in-reply-to"]; ok {
		return MentionKindReply
	}
	if _, ok := m.Item["like-of"]; ok {
		return MentionKindLike
	}
	return MentionKindMention
}

// AuthorName digs the display name out of the embedded h-card, if any.
func (m *Mention) AuthorName() string {
	author, ok := m.Item["author"].(map[string]any)
	if !ok {
		return ""
	}
	if name, ok := author["name"].(string); ok {
		return name
	}
	return ""
}

// ContentHTML returns the mention's content. Plain-text content is kept as
// is; html content is returned raw for the decorator to mark safe.
func (m *Mention) ContentHTML() (text string, html string) {
	switch c := m.Item["content"].(type) {
	case string:
		return c, ""
	case map[string]any:
		h, _ := c["html"].(string)
		v, _ := c["value"].(string)
		return v, h
	}
	return "", ""
}

// IsMentionPath reports whether a storage path belongs to the mentions keyspace.
func IsMentionPath(path string) bool {
	return strings.HasPrefix(path, MentionPrefix)
}
