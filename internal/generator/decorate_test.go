package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/models"
)

func newTestDecorator() *Decorator {
	return NewDecorator(NewEmbedder("http://unused.invalid", zap.NewNop()))
}

func TestDecoratePost(t *testing.T) {
	d := newTestDecorator()

	post, err := d.Post(context.Background(), &models.ContentItem{
		TenantID:     "example.org",
		Path:         "posts/2023/04/hello",
		Name:         "Hello",
		Content:      "Hi **there**.",
		Published:    "2023-04-12T09:30:00Z",
		MentionCount: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", post.Name)
	assert.Equal(t, "/2023/04/hello/", post.Permalink)
	assert.Equal(t, 2, post.MentionCount)
	assert.Equal(t, "<p>Hi <strong>there</strong>.</p>\n", string(post.Content))
	assert.Equal(t, 2023, post.Published.Year())
}

func TestDecoratePostEmptyContent(t *testing.T) {
	d := newTestDecorator()

	post, err := d.Post(context.Background(), &models.ContentItem{
		TenantID: "example.org",
		Path:     "posts/2023/04/photo",
		Photo:    models.StringArray{"https://example.org/a.jpg"},
	})
	require.NoError(t, err)

	assert.Empty(t, string(post.Content))
	assert.Equal(t, []string{"https://example.org/a.jpg"}, post.Photo)
}

func TestDecorateMentions(t *testing.T) {
	d := newTestDecorator()

	mentions := []models.Mention{
		{
			Item: models.PropertyMap{
				"url":         "https://other.example/reply",
				"in-reply-to": "https://example.org/2023/04/hello/",
				"content":     map[string]any{"html": "<p>nice</p>", "value": "nice"},
				"author":      map[string]any{"name": "Sam"},
			},
		},
		{
			Item: models.PropertyMap{
				"url":     "https://other.example/note",
				"content": "plain <text>",
			},
		},
	}

	decorated := d.Mentions(mentions)
	require.Len(t, decorated, 2)

	assert.Equal(t, models.MentionKindReply, decorated[0].Kind)
	assert.Equal(t, "Sam", decorated[0].Author)
	assert.Equal(t, "<p>nice</p>", string(decorated[0].Content))

	// plain-text content gets escaped
	assert.Equal(t, models.MentionKindMention, decorated[1].Kind)
	assert.Equal(t, "plain &lt;text&gt;", string(decorated[1].Content))
}

func TestBuildFeeds(t *testing.T) {
	site := testSite()
	posts := []*DecoratedPost{
		{
			Name:      "Hello",
			Content:   "<p>Hi there.</p>",
			Permalink: "/2023/04/hello/",
			Published: mustParseTime(t, "2023-04-12T09:30:00Z"),
		},
	}

	siteFeeds, err := BuildFeeds(site, posts)
	require.NoError(t, err)

	for _, doc := range []string{siteFeeds.JSON, siteFeeds.Atom, siteFeeds.RSS} {
		assert.Contains(t, doc, "Hello")
		assert.Contains(t, doc, "https://example.org/2023/04/hello/")
	}
	assert.Contains(t, siteFeeds.JSON, `"title": "Example"`)
}
