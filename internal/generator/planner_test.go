package generator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, store.Migrate(db))
	return store.NewStore(db, zap.NewNop())
}

func testSite() *models.SiteConfig {
	return &models.SiteConfig{
		TenantID:   "example.org",
		Title:      "Example",
		AuthorName: "Jo Example",
	}
}

func jobSummaries(jobs []models.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, string(j.Kind)+"/"+j.ID)
	}
	return out
}

func TestPlanChangesDedupesMonths(t *testing.T) {
	p := NewPlanner(newTestStore(t), 20, zap.NewNop())

	rows := []*models.ContentItem{
		{TenantID: "example.org", Path: "posts/2023/04/hello", Published: "2023-04-12T09:30:00Z"},
		{TenantID: "example.org", Path: "posts/2023/04/again", Published: "2023-04-20T18:00:00Z"},
	}

	jobs := p.PlanChanges(testSite(), rows)

	// two posts in the same month plan one month job and one index job
	assert.Equal(t, []string{
		"generatePost/record-0",
		"generatePost/record-1",
		"generateArchiveMonth/archive-2023-04",
		"generateIndex/index",
	}, jobSummaries(jobs))

	assert.Equal(t, "posts/2023/04/hello", jobs[0].Payload.Path)
	assert.Equal(t, "2023-04", jobs[2].Payload.Month)
	assert.Equal(t, "example.org", jobs[3].Payload.Site.TenantID)
}

func TestPlanChangesPagesAndArchiveRow(t *testing.T) {
	p := NewPlanner(newTestStore(t), 20, zap.NewNop())

	rows := []*models.ContentItem{
		{TenantID: "example.org", Path: "pages/about"},
		{TenantID: "example.org", Path: models.ArchiveCachePath},
	}

	jobs := p.PlanChanges(testSite(), rows)

	// pages plan no index job; the archive row plans only its listing page
	assert.Equal(t, []string{
		"generatePage/record-0",
		"generateArchiveIndex/archive-index-1",
	}, jobSummaries(jobs))
}

func TestPlanChangesIgnoresMentions(t *testing.T) {
	p := NewPlanner(newTestStore(t), 20, zap.NewNop())

	rows := []*models.ContentItem{
		{TenantID: "example.org", Path: "mentions/2023/04/hello/2023-05-01-https://other.example/"},
	}

	jobs := p.PlanChanges(testSite(), rows)
	assert.Empty(t, jobs)
}

func TestPlanRequestsAllPosts(t *testing.T) {
	s := newTestStore(t)
	p := NewPlanner(s, 20, zap.NewNop())
	ctx := context.Background()

	seed := []models.ContentItem{
		{TenantID: "example.org", Path: "posts/a", Published: "2023-04-01T00:00:00Z"},
		{TenantID: "example.org", Path: "posts/b", Published: "2023-01-05T00:00:00Z"},
	}
	for i := range seed {
		require.NoError(t, s.Put(ctx, &seed[i]))
	}

	jobs, err := p.PlanRequests(ctx, testSite(), GenerateOptions{
		Posts: &Selection{All: true},
		Index: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"generatePost/post-0",
		"generatePost/post-1",
		"generateIndex/index",
	}, jobSummaries(jobs))

	// resolving all posts rebuilds the archive index as a side effect
	months, err := s.ArchiveMonths(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-04", "2023-01"}, months)
}

func TestPlanRequestsExplicitPaths(t *testing.T) {
	s := newTestStore(t)
	p := NewPlanner(s, 20, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &models.ContentItem{
		TenantID: "example.org", Path: "posts/a", Published: "2023-04-01T00:00:00Z",
	}))

	jobs, err := p.PlanRequests(ctx, testSite(), GenerateOptions{
		Posts: &Selection{Keys: []string{"posts/a"}},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "posts/a", jobs[0].Payload.Path)

	// a missing path fails the whole request
	_, err = p.PlanRequests(ctx, testSite(), GenerateOptions{
		Posts: &Selection{Keys: []string{"posts/a", "posts/missing"}},
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPlanRequestsArchivesAndStatics(t *testing.T) {
	s := newTestStore(t)
	p := NewPlanner(s, 20, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.ArchiveAddDate(ctx, "example.org", "2023-01"))
	require.NoError(t, s.ArchiveAddDate(ctx, "example.org", "2023-04"))

	jobs, err := p.PlanRequests(ctx, testSite(), GenerateOptions{
		Archives:     &Selection{All: true},
		ArchiveIndex: true,
		Error:        true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"generateArchiveMonth/archive-2023-04",
		"generateArchiveMonth/archive-2023-01",
		"generateArchiveIndex/archive-index",
		"generateError/error",
	}, jobSummaries(jobs))
}

func TestPlanRequestsRejectsRecentOutsidePosts(t *testing.T) {
	p := NewPlanner(newTestStore(t), 20, zap.NewNop())
	ctx := context.Background()

	_, err := p.PlanRequests(ctx, testSite(), GenerateOptions{
		Pages: &Selection{Recent: true},
	})
	assert.ErrorIs(t, err, ErrBadSelection)

	_, err = p.PlanRequests(ctx, testSite(), GenerateOptions{
		Archives: &Selection{Recent: true},
	})
	assert.ErrorIs(t, err, ErrBadSelection)
}

func TestSelectionUnmarshal(t *testing.T) {
	var opts GenerateOptions
	require.NoError(t, json.Unmarshal([]byte(`{
		"posts": "all",
		"pages": ["pages/about"],
		"archives": "recent"
	}`), &opts))

	assert.True(t, opts.Posts.All)
	assert.Equal(t, []string{"pages/about"}, opts.Pages.Keys)
	assert.True(t, opts.Archives.Recent)

	var bad GenerateOptions
	err := json.Unmarshal([]byte(`{"posts": "everything"}`), &bad)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"posts": 7}`), &bad)
	assert.Error(t, err)
}
