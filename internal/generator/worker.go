package generator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mjm/serverless-blog/internal/blob"
	"github.com/mjm/serverless-blog/internal/metrics"
	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/queue"
	"github.com/mjm/serverless-blog/internal/store"
)

type handlerFunc func(ctx context.Context, payload models.JobPayload) error

// Worker consumes generation jobs and routes each one to the handler for
// its kind. All mutable state it shares between jobs lives in the injected
// renderer cache, which is reset before every batch.
type Worker struct {
	store       *store.Store
	blob        blob.Publisher
	renderers   *RendererCache
	decorator   *Decorator
	pinger      Pinger
	metrics     *metrics.Metrics
	logger      *zap.Logger
	recentCount int

	handlers map[models.JobKind]handlerFunc
}

func NewWorker(
	s *store.Store,
	publisher blob.Publisher,
	renderers *RendererCache,
	decorator *Decorator,
	pinger Pinger,
	m *metrics.Metrics,
	recentCount int,
	logger *zap.Logger,
) *Worker {
	w := &Worker{
		store:       s,
		blob:        publisher,
		renderers:   renderers,
		decorator:   decorator,
		pinger:      pinger,
		metrics:     m,
		logger:      logger.With(zap.String("component", "worker")),
		recentCount: recentCount,
	}

	w.handlers = map[models.JobKind]handlerFunc{
		models.JobIndex:        w.generateIndex,
		models.JobError:        w.generateError,
		models.JobPost:         w.generatePost,
		models.JobPage:         w.generatePage,
		models.JobArchiveIndex: w.generateArchiveIndex,
		models.JobArchiveMonth: w.generateArchiveMonth,
	}

	return w
}

// HandleBatch processes one delivered batch of jobs. Jobs within a batch
// run concurrently and carry no ordering guarantee: every handler reads the
// authoritative store at execution time, so any interleaving converges.
func (w *Worker) HandleBatch(ctx context.Context, msgs []queue.Message) error {
	// a new batch may follow a template redeploy
	w.renderers.Invalidate()

	g, ctx := errgroup.WithContext(ctx)
	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			return w.handleMessage(ctx, msg)
		})
	}
	return g.Wait()
}

func (w *Worker) handleMessage(ctx context.Context, msg queue.Message) error {
	kind := models.JobKind(msg.EventType)
	handler, ok := w.handlers[kind]
	if !ok {
		// a protocol mismatch, not a transient condition
		w.metrics.JobsProcessed.WithLabelValues(msg.EventType, "failed").Inc()
		return fmt.Errorf("unknown job kind %q", msg.EventType)
	}

	var payload models.JobPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		w.metrics.JobsProcessed.WithLabelValues(msg.EventType, "failed").Inc()
		return fmt.Errorf("failed to decode %s job payload: %w", kind, err)
	}

	if err := handler(ctx, payload); err != nil {
		w.metrics.JobsProcessed.WithLabelValues(msg.EventType, "failed").Inc()
		w.logger.Error("Generation job failed",
			zap.String("kind", msg.EventType),
			zap.String("tenant_id", payload.Site.TenantID),
			zap.Error(err))
		return err
	}

	w.metrics.JobsProcessed.WithLabelValues(msg.EventType, "ok").Inc()
	return nil
}
