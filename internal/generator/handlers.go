package generator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/store"
)

// generateIndex rebuilds the home page and the site feeds, then pings the
// configured update-notification endpoints.
func (w *Worker) generateIndex(ctx context.Context, payload models.JobPayload) error {
	site := payload.Site

	posts, err := w.store.RecentPosts(ctx, site.TenantID, w.recentCount)
	if err != nil {
		return err
	}
	decorated, err := w.decorator.Posts(ctx, posts)
	if err != nil {
		return err
	}

	r, err := w.renderers.Get(ctx, &site)
	if err != nil {
		return err
	}

	body, err := r.Render("index.html", map[string]any{
		"Site":  &site,
		"Posts": decorated,
	})
	if err != nil {
		return err
	}

	siteFeeds, err := BuildFeeds(&site, decorated)
	if err != nil {
		return err
	}

	// the group context dies with Wait, so pings below keep the caller's
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.publish(gctx, &site, "index.html", body) })
	g.Go(func() error { return w.publish(gctx, &site, "feed.json", siteFeeds.JSON) })
	g.Go(func() error { return w.publish(gctx, &site, "feed.atom", siteFeeds.Atom) })
	g.Go(func() error { return w.publish(gctx, &site, "feed.rss", siteFeeds.RSS) })
	if err := g.Wait(); err != nil {
		return err
	}

	BestEffort(w.logger, "send pings", func() error {
		return w.pinger.SendPings(ctx, &site)
	})

	return nil
}

// generateError renders the static error page.
func (w *Worker) generateError(ctx context.Context, payload models.JobPayload) error {
	site := payload.Site

	r, err := w.renderers.Get(ctx, &site)
	if err != nil {
		return err
	}

	body, err := r.Render("error.html", map[string]any{"Site": &site})
	if err != nil {
		return err
	}

	return w.publish(ctx, &site, "error.html", body)
}

// generatePost rebuilds one post page along with its mentions. The post is
// re-read from the store so a redelivered or raced job still renders the
// latest content.
func (w *Worker) generatePost(ctx context.Context, payload models.JobPayload) error {
	site := payload.Site

	item, err := w.store.Get(ctx, site.TenantID, payload.Path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// deleted since the job was planned; nothing to render
			w.logger.Warn("Skipping generate for missing post",
				zap.String("tenant_id", site.TenantID),
				zap.String("path", payload.Path))
			return nil
		}
		return err
	}

	mentions, err := w.store.MentionsForPost(ctx, item)
	if err != nil {
		return err
	}

	post, err := w.decorator.Post(ctx, item)
	if err != nil {
		return err
	}

	r, err := w.renderers.Get(ctx, &site)
	if err != nil {
		return err
	}

	templateName := item.Type
	if templateName == "" {
		templateName = models.TypeEntry
	}

	body, err := r.Render(templateName+".html", map[string]any{
		"Site":     &site,
		"Post":     post,
		"Mentions": w.decorator.Mentions(mentions),
	})
	if err != nil {
		return err
	}

	return w.publish(ctx, &site, permalinkDest(post.Permalink), body)
}

// generatePage rebuilds one static page; pages carry no mentions.
func (w *Worker) generatePage(ctx context.Context, payload models.JobPayload) error {
	site := payload.Site

	item, err := w.store.Get(ctx, site.TenantID, payload.Path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.logger.Warn("Skipping generate for missing page",
				zap.String("tenant_id", site.TenantID),
				zap.String("path", payload.Path))
			return nil
		}
		return err
	}

	page, err := w.decorator.Page(ctx, item)
	if err != nil {
		return err
	}

	r, err := w.renderers.Get(ctx, &site)
	if err != nil {
		return err
	}

	body, err := r.Render("page.html", map[string]any{
		"Site": &site,
		"Page": page,
	})
	if err != nil {
		return err
	}

	return w.publish(ctx, &site, permalinkDest(page.Permalink), body)
}

// generateArchiveIndex rebuilds the archive listing page from the derived
// month index.
func (w *Worker) generateArchiveIndex(ctx context.Context, payload models.JobPayload) error {
	site := payload.Site

	monthStrings, err := w.store.ArchiveMonths(ctx, site.TenantID)
	if err != nil {
		return err
	}

	months := make([]Month, 0, len(monthStrings))
	for _, m := range monthStrings {
		months = append(months, makeMonth(m))
	}

	r, err := w.renderers.Get(ctx, &site)
	if err != nil {
		return err
	}

	body, err := r.Render("archive.html", map[string]any{
		"Site":   &site,
		"Months": months,
	})
	if err != nil {
		return err
	}

	return w.publish(ctx, &site, "archive/index.html", body)
}

// generateArchiveMonth rebuilds one month page. The month's posts are
// always re-queried, never taken from the job payload.
func (w *Worker) generateArchiveMonth(ctx context.Context, payload models.JobPayload) error {
	site := payload.Site

	posts, err := w.store.PostsForMonth(ctx, site.TenantID, payload.Month)
	if err != nil {
		return err
	}
	decorated, err := w.decorator.Posts(ctx, posts)
	if err != nil {
		return err
	}

	month := makeMonth(payload.Month)

	r, err := w.renderers.Get(ctx, &site)
	if err != nil {
		return err
	}

	body, err := r.Render("archiveMonth.html", map[string]any{
		"Site":  &site,
		"Month": month,
		"Posts": decorated,
	})
	if err != nil {
		return err
	}

	return w.publish(ctx, &site, permalinkDest(month.Permalink), body)
}

// Month is the template view of one archive month.
type Month struct {
	Date      time.Time
	Permalink string
}

func makeMonth(m string) Month {
	date, err := time.Parse("2006-01", m)
	if err != nil {
		return Month{Permalink: "/" + m + "/"}
	}
	return Month{
		Date:      date,
		Permalink: date.Format("/2006/01/"),
	}
}

// permalinkDest transforms /foo/bar/ to foo/bar/index.html
func permalinkDest(permalink string) string {
	return strings.TrimPrefix(permalink, "/") + "index.html"
}

// publish writes one rendered artifact to the tenant's bucket.
func (w *Worker) publish(ctx context.Context, site *models.SiteConfig, path, body string) error {
	w.logger.Info("Publishing artifact",
		zap.String("tenant_id", site.TenantID),
		zap.String("path", path))
	return w.blob.Put(ctx, site.TenantID, path, []byte(body), artifactContentType(path))
}

func artifactContentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/feed+json"
	case strings.HasSuffix(path, ".atom"):
		return "application/atom+xml"
	case strings.HasSuffix(path, ".rss"):
		return "application/rss+xml"
	case strings.HasSuffix(path, ".xml"):
		return "application/xml"
	default:
		return "text/html; charset=utf-8"
	}
}

