package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjm/serverless-blog/internal/models"
)

func TestArchiveAddDate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// no archive row yet
	months, err := s.ArchiveMonths(ctx, "example.org")
	require.NoError(t, err)
	assert.Empty(t, months)

	// first add creates the row lazily
	require.NoError(t, s.ArchiveAddDate(ctx, "example.org", "2023-04"))
	require.NoError(t, s.ArchiveAddDate(ctx, "example.org", "2023-01"))

	// re-adding a month is a no-op
	require.NoError(t, s.ArchiveAddDate(ctx, "example.org", "2023-04"))

	months, err = s.ArchiveMonths(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-04", "2023-01"}, months)
}

func TestArchiveRebuild(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// a stale month that no post carries anymore
	require.NoError(t, s.ArchiveAddDate(ctx, "example.org", "2019-12"))

	posts := []models.ContentItem{
		{TenantID: "example.org", Path: "posts/a", Published: "2023-04-01T00:00:00Z"},
		{TenantID: "example.org", Path: "posts/b", Published: "2023-04-20T00:00:00Z"},
		{TenantID: "example.org", Path: "posts/c", Published: "2023-01-05T00:00:00Z"},
		{TenantID: "example.org", Path: "posts/draft"},
	}
	require.NoError(t, s.ArchiveRebuild(ctx, "example.org", posts))

	months, err := s.ArchiveMonths(ctx, "example.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-04", "2023-01"}, months)
}
