package generator

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/metrics"
	"github.com/mjm/serverless-blog/internal/models"
	"github.com/mjm/serverless-blog/internal/queue"
	"github.com/mjm/serverless-blog/internal/store"
)

// ChangeProcessor is the CDC entry point of the pipeline: it turns a batch
// of raw storage-mutation messages into dispatched generation jobs.
type ChangeProcessor struct {
	store      *store.Store
	collector  *Collector
	planner    *Planner
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func NewChangeProcessor(
	s *store.Store,
	collector *Collector,
	planner *Planner,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ChangeProcessor {
	return &ChangeProcessor{
		store:      s,
		collector:  collector,
		planner:    planner,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With(zap.String("component", "change-processor")),
	}
}

// HandleBatch decodes and groups the delivered change records, then plans
// and dispatches jobs once per tenant. The tenant config is fetched once
// here and embedded into every job payload.
func (p *ChangeProcessor) HandleBatch(ctx context.Context, msgs []queue.Message) error {
	records := make([]models.ChangeRecord, 0, len(msgs))
	for _, msg := range msgs {
		var record models.ChangeRecord
		if err := json.Unmarshal(msg.Body, &record); err != nil {
			p.logger.Warn("Dropping undecodable change message", zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	for tenantID, rows := range p.collector.Collect(records) {
		cfg, err := p.store.GetSiteConfig(ctx, tenantID)
		if err != nil {
			return err
		}

		// keep the archive month set in step with the published posts
		for _, m := range changedMonths(rows) {
			if err := p.store.ArchiveAddDate(ctx, tenantID, m); err != nil {
				return err
			}
		}

		jobs := p.planner.PlanChanges(cfg, rows)
		if err := p.dispatcher.Dispatch(ctx, jobs); err != nil {
			return err
		}

		p.metrics.ChangeBatches.Inc()
		p.logger.Info("Planned jobs for changed rows",
			zap.String("tenant_id", tenantID),
			zap.Int("rows", len(rows)),
			zap.Int("jobs", len(jobs)))
	}

	return nil
}

func changedMonths(rows []*models.ContentItem) []string {
	seen := make(map[string]bool)
	var months []string
	for _, row := range rows {
		if !row.IsPost() {
			continue
		}
		if m := row.PublishedMonth(); m != "" && !seen[m] {
			seen[m] = true
			months = append(months, m)
		}
	}
	return months
}
