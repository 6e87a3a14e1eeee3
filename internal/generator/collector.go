package generator

import (
	"go.uber.org/zap"

	"github.com/mjm/serverless-blog/internal/models"
)

// Collector groups raw storage-mutation records by tenant and decodes their
// new images into typed rows.
type Collector struct {
	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{
		logger: logger.With(zap.String("component", "collector")),
	}
}

// Collect returns the decoded rows grouped by tenant id. Records with no
// tenant key or no new image are dropped with a warning: they represent
// deletions or malformed events and plan no work.
func (c *Collector) Collect(records []models.ChangeRecord) map[string][]*models.ContentItem {
	groups := make(map[string][]*models.ContentItem)

	for _, r := range records {
		if r.Keys.TenantID == "" {
			c.logger.Warn("Dropping change record with no tenant key",
				zap.String("path", r.Keys.Path))
			continue
		}
		if len(r.NewImage) == 0 {
			c.logger.Warn("Dropping change record with no new image",
				zap.String("tenant_id", r.Keys.TenantID),
				zap.String("path", r.Keys.Path))
			continue
		}

		item, err := models.ItemFromImage(r.Keys.TenantID, r.NewImage)
		if err != nil {
			c.logger.Warn("Dropping undecodable change record",
				zap.String("tenant_id", r.Keys.TenantID),
				zap.String("path", r.Keys.Path),
				zap.Error(err))
			continue
		}
		if item.Path == "" {
			item.Path = r.Keys.Path
		}

		groups[r.Keys.TenantID] = append(groups[r.Keys.TenantID], item)
	}

	return groups
}
