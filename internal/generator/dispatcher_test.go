package generator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/queue"
)

type fakeSender struct {
	batches [][]queue.Entry
	failAt  int
}

func (f *fakeSender) SendBatch(ctx context.Context, entries []queue.Entry) error {
	if f.failAt > 0 && len(f.batches)+1 == f.failAt {
		return errors.New("broker unavailable")
	}
	batch := make([]queue.Entry, len(entries))
	copy(batch, entries)
	f.batches = append(f.batches, batch)
	return nil
}

func makeJobs(n int) []models.Job {
	jobs := make([]models.Job, 0, n)
	for i := 0; i < n; i++ {
		jobs = append(jobs, models.Job{
			ID:   fmt.Sprintf("post-%d", i),
			Kind: models.JobPost,
			Payload: models.JobPayload{
				Site: models.SiteConfig{TenantID: "example.org"},
				Path: fmt.Sprintf("posts/%d", i),
			},
		})
	}
	return jobs
}

func TestDispatchChunks(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, zap.NewNop())

	require.NoError(t, d.Dispatch(context.Background(), makeJobs(23)))

	require.Len(t, sender.batches, 3)
	assert.Len(t, sender.batches[0], 10)
	assert.Len(t, sender.batches[1], 10)
	assert.Len(t, sender.batches[2], 3)

	// order is preserved across chunks
	assert.Equal(t, "post-0", sender.batches[0][0].ID)
	assert.Equal(t, "post-10", sender.batches[1][0].ID)
	assert.Equal(t, "post-22", sender.batches[2][2].ID)
	assert.Equal(t, "generatePost", sender.batches[0][0].EventType)
}

func TestDispatchEmpty(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(sender, zap.NewNop())

	require.NoError(t, d.Dispatch(context.Background(), nil))
	assert.Empty(t, sender.batches)
}

func TestDispatchFailsOnChunkError(t *testing.T) {
	sender := &fakeSender{failAt: 2}
	d := NewDispatcher(sender, zap.NewNop())

	err := d.Dispatch(context.Background(), makeJobs(15))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobs 10-14")

	// the first chunk was already submitted
	assert.Len(t, sender.batches, 1)
}
