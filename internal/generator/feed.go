package generator

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/mjm/serverless-blog/internal/models"
)

// SiteFeeds holds the rendered per-format feed documents for a site.
type SiteFeeds struct {
	JSON string
	Atom string
	RSS  string
}

// BuildFeeds renders the site feed in every supported format from the
// already-decorated recent posts.
func BuildFeeds(site *models.SiteConfig, posts []*DecoratedPost) (*SiteFeeds, error) {
	siteURL := site.BaseURL()

	feed := &feeds.Feed{
		Id:        siteURL,
		Title:     site.Title,
		Link:      &feeds.Link{Href: siteURL},
		Copyright: fmt.Sprintf("%d %s", time.Now().Year(), site.AuthorName),
		Author: &feeds.Author{
			Name:  site.AuthorName,
			Email: site.AuthorEmail,
		},
	}

	for _, p := range posts {
		url := siteURL + strings.TrimPrefix(p.Permalink, "/")
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      url,
			Title:   p.Name,
			Link:    &feeds.Link{Href: url},
			Created: p.Published,
			Content: string(p.Content),
		})

		if feed.Updated.IsZero() || p.Published.After(feed.Updated) {
			feed.Updated = p.Published
		}
	}

	jsonFeed, err := feed.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to build json feed: %w", err)
	}
	atomFeed, err := feed.ToAtom()
	if err != nil {
		return nil, fmt.Errorf("failed to build atom feed: %w", err)
	}
	rssFeed, err := feed.ToRss()
	if err != nil {
		return nil, fmt.Errorf("failed to build rss feed: %w", err)
	}

	return &SiteFeeds{JSON: jsonFeed, Atom: atomFeed, RSS: rssFeed}, nil
}
