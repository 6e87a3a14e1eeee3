package generator

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"

	"github.com/mjm/serverless-blog/internal/models"
)

// DecoratedPost is the render-ready view of a stored post.
type DecoratedPost struct {
	Type         string
	Path         string
	Name         string
	Content      template.HTML
	Published    time.Time
	Photo        []string
	Syndication  []string
	Permalink    string
	MentionCount int
}

// DecoratedPage is the render-ready view of a stored page.
type DecoratedPage struct {
	Path      string
	Name      string
	Content   template.HTML
	Permalink string
}

// DecoratedMention is the render-ready view of a stored mention.
type DecoratedMention struct {
	Type      string
	Kind      models.MentionKind
	URL       string
	Content   template.HTML
	Published time.Time
	Author    string
}

// Decorator converts stored rows into render-ready views: markdown body
// rendering with a social-media embedding pass, permalink computation, and
// passthrough of the denormalized fields templates need.
type Decorator struct {
	embedder *Embedder
}

func NewDecorator(embedder *Embedder) *Decorator {
	return &Decorator{embedder: embedder}
}

func (d *Decorator) Post(ctx context.Context, item *models.ContentItem) (*DecoratedPost, error) {
	content, err := d.renderContent(ctx, item.Content)
	if err != nil {
		return nil, err
	}

	return &DecoratedPost{
		Type:         item.Type,
		Path:         item.Path,
		Name:         item.Name,
		Content:      content,
		Published:    item.PublishedTime(),
		Photo:        item.Photo,
		Syndication:  item.Syndication,
		Permalink:    item.Permalink(),
		MentionCount: item.MentionCount,
	}, nil
}

func (d *Decorator) Posts(ctx context.Context, items []models.ContentItem) ([]*DecoratedPost, error) {
	posts := make([]*DecoratedPost, 0, len(items))
	for i := range items {
		p, err := d.Post(ctx, &items[i])
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

func (d *Decorator) Page(ctx context.Context, item *models.ContentItem) (*DecoratedPage, error) {
	content, err := d.renderContent(ctx, item.Content)
	if err != nil {
		return nil, err
	}

	return &DecoratedPage{
		Path:      item.Path,
		Name:      item.Name,
		Content:   content,
		Permalink: item.Permalink(),
	}, nil
}

func (d *Decorator) Mentions(mentions []models.Mention) []*DecoratedMention {
	decorated := make([]*DecoratedMention, 0, len(mentions))
	for i := range mentions {
		m := &mentions[i]

		var content template.HTML
		if text, html := m.ContentHTML(); html != "" {
			content = template.HTML(html)
		} else {
			content = template.HTML(template.HTMLEscapeString(text))
		}

		itemType, _ := m.Item["type"].(string)
		decorated = append(decorated, &DecoratedMention{
			Type:      itemType,
			Kind:      m.Kind(),
			URL:       m.URL(),
			Content:   content,
			Published: m.PublishedTime(),
			Author:    m.AuthorName(),
		})
	}
	return decorated
}

// renderContent runs the embedding pass and then renders markdown. The
// resulting HTML is trusted: it came from the tenant's own content.
func (d *Decorator) renderContent(ctx context.Context, content string) (template.HTML, error) {
	if content == "" {
		return "", nil
	}

	embedded := d.embedder.EmbedSocialURLs(ctx, content)

	html, err := renderMarkdown(embedded)
	if err != nil {
		return "", err
	}
	return template.HTML(html), nil
}

var markdown = goldmark.New()

func renderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
