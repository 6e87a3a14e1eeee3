package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/store"
)

// ErrBadSelection marks a selection value the requested field does not
// support. It is a user error, never retried.
var ErrBadSelection = errors.New("invalid selection")

// Selection is the explicit string-or-list union accepted by the on-demand
// API for posts, pages and archives: "all", "recent" (posts only), or a
// list of keys.
type Selection struct {
	All    bool
	Recent bool
	Keys   []string
}

func (s *Selection) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		switch str {
		case "all":
			s.All = true
		case "recent":
			s.Recent = true
		default:
			return fmt.Errorf("invalid selection %q", str)
		}
		return nil
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("selection must be a string or a list of strings")
	}
	s.Keys = keys
	return nil
}

// GenerateOptions describes an on-demand regeneration request.
type GenerateOptions struct {
	Index        bool       `json:"index"`
	Error        bool       `json:"error"`
	ArchiveIndex bool       `json:"archiveIndex"`
	Posts        *Selection `json:"posts"`
	Pages        *Selection `json:"pages"`
	Archives     *Selection `json:"archives"`
}

// Planner translates changed or requested content into the minimal list of
// generation jobs.
type Planner struct {
	store       *store.Store
	logger      *zap.Logger
	recentCount int
}

func NewPlanner(s *store.Store, recentCount int, logger *zap.Logger) *Planner {
	return &Planner{
		store:       s,
		logger:      logger.With(zap.String("component", "planner")),
		recentCount: recentCount,
	}
}

// PlanChanges plans jobs for a batch of changed rows (CDC mode). Affected
// archive months are deduplicated, and at most one index job is emitted no
// matter how many posts changed.
func (p *Planner) PlanChanges(cfg *models.SiteConfig, rows []*models.ContentItem) []models.Job {
	var jobs []models.Job
	includeIndex := false
	months := make(map[string]bool)

	addJob := func(kind models.JobKind, id string, payload models.JobPayload) {
		payload.Site = *cfg
		jobs = append(jobs, models.Job{ID: id, Kind: kind, Payload: payload})
	}

	for i, row := range rows {
		switch {
		case row.IsPost():
			includeIndex = true
			addJob(models.JobPost, fmt.Sprintf("record-%d", i), models.JobPayload{Path: row.Path})

			if m := row.PublishedMonth(); m != "" {
				months[m] = true
			}
		case row.IsPage():
			addJob(models.JobPage, fmt.Sprintf("record-%d", i), models.JobPayload{Path: row.Path})
		case row.Path == models.ArchiveCachePath:
			addJob(models.JobArchiveIndex, fmt.Sprintf("archive-index-%d", i), models.JobPayload{})
		default:
			// mentions and other derived rows plan no work of their own
		}
	}

	for _, m := range sortedMonths(months) {
		addJob(models.JobArchiveMonth, "archive-"+m, models.JobPayload{Month: m})
	}

	if includeIndex {
		addJob(models.JobIndex, "index", models.JobPayload{})
	}

	return jobs
}

// PlanRequests plans jobs for an explicit regeneration request (on-demand
// mode). Resolving "all" posts rebuilds the archive index as a side effect,
// since the full post list is already in hand.
func (p *Planner) PlanRequests(ctx context.Context, cfg *models.SiteConfig, opts GenerateOptions) ([]models.Job, error) {
	var jobs []models.Job
	addJob := func(kind models.JobKind, id string, payload models.JobPayload) {
		payload.Site = *cfg
		jobs = append(jobs, models.Job{ID: id, Kind: kind, Payload: payload})
	}

	if opts.Posts != nil {
		posts, err := p.resolvePosts(ctx, cfg, opts.Posts)
		if err != nil {
			return nil, err
		}
		for i := range posts {
			addJob(models.JobPost, fmt.Sprintf("post-%d", i), models.JobPayload{Path: posts[i].Path})
		}
	}

	if opts.Pages != nil {
		pages, err := p.resolvePages(ctx, cfg, opts.Pages)
		if err != nil {
			return nil, err
		}
		for i := range pages {
			addJob(models.JobPage, fmt.Sprintf("page-%d", i), models.JobPayload{Path: pages[i].Path})
		}
	}

	if opts.Archives != nil {
		months, err := p.resolveArchives(ctx, cfg, opts.Archives)
		if err != nil {
			return nil, err
		}
		for _, m := range months {
			addJob(models.JobArchiveMonth, "archive-"+m, models.JobPayload{Month: m})
		}
	}

	if opts.ArchiveIndex {
		addJob(models.JobArchiveIndex, "archive-index", models.JobPayload{})
	}
	if opts.Index {
		addJob(models.JobIndex, "index", models.JobPayload{})
	}
	if opts.Error {
		addJob(models.JobError, "error", models.JobPayload{})
	}

	return jobs, nil
}

func (p *Planner) resolvePosts(ctx context.Context, cfg *models.SiteConfig, sel *Selection) ([]models.ContentItem, error) {
	switch {
	case sel.All:
		posts, err := p.store.AllPosts(ctx, cfg.TenantID)
		if err != nil {
			return nil, err
		}

		// the full list is already paid for, so refresh the archive index too
		if err := p.store.ArchiveRebuild(ctx, cfg.TenantID, posts); err != nil {
			return nil, err
		}
		return posts, nil
	case sel.Recent:
		return p.store.RecentPosts(ctx, cfg.TenantID, p.recentCount)
	default:
		return p.resolveByPath(ctx, cfg, sel.Keys)
	}
}

func (p *Planner) resolvePages(ctx context.Context, cfg *models.SiteConfig, sel *Selection) ([]models.ContentItem, error) {
	switch {
	case sel.All:
		return p.store.AllPages(ctx, cfg.TenantID)
	case sel.Recent:
		return nil, fmt.Errorf(`%w: pages do not support "recent"`, ErrBadSelection)
	default:
		return p.resolveByPath(ctx, cfg, sel.Keys)
	}
}

// resolveByPath looks up each explicitly requested path. A missing path
// fails the whole request: the caller asked for it by name.
func (p *Planner) resolveByPath(ctx context.Context, cfg *models.SiteConfig, paths []string) ([]models.ContentItem, error) {
	items := make([]models.ContentItem, 0, len(paths))
	for _, path := range paths {
		item, err := p.store.Get(ctx, cfg.TenantID, path)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("no item at path %q: %w", path, err)
			}
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (p *Planner) resolveArchives(ctx context.Context, cfg *models.SiteConfig, sel *Selection) ([]string, error) {
	switch {
	case sel.All:
		return p.store.ArchiveMonths(ctx, cfg.TenantID)
	case sel.Recent:
		return nil, fmt.Errorf(`%w: archives do not support "recent"`, ErrBadSelection)
	default:
		return sel.Keys, nil
	}
}

func sortedMonths(set map[string]bool) []string {
	months := make([]string, 0, len(set))
	for m := range set {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}
