package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/queue"
)

// maxBatchEntries is the hard per-submission limit of the queue provider.
const maxBatchEntries = 10

// Dispatcher packs planned jobs into provider-bounded batches and submits
// them sequentially.
type Dispatcher struct {
	sender queue.BatchSender
	logger *zap.Logger
}

func NewDispatcher(sender queue.BatchSender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		logger: logger.With(zap.String("component", "dispatcher")),
	}
}

// Dispatch submits the jobs in consecutive chunks of at most the batch
// limit, awaiting each send before starting the next. A failed chunk fails
// the whole dispatch; retry policy belongs to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []models.Job) error {
	entries := make([]queue.Entry, 0, len(jobs))
	for i := range jobs {
		body, err := jobs[i].Body()
		if err != nil {
			return fmt.Errorf("failed to encode job %s: %w", jobs[i].ID, err)
		}
		entries = append(entries, queue.Entry{
			ID:        jobs[i].ID,
			EventType: string(jobs[i].Kind),
			Body:      body,
		})
	}

	for start := 0; start < len(entries); start += maxBatchEntries {
		end := start + maxBatchEntries
		if end > len(entries) {
			end = len(entries)
		}

		if err := d.sender.SendBatch(ctx, entries[start:end]); err != nil {
			return fmt.Errorf("failed to dispatch jobs %d-%d: %w", start, end-1, err)
		}
	}

	if len(jobs) > 0 {
		d.logger.Info("Dispatched generation jobs", zap.Int("count", len(jobs)))
	}
	return nil
}
