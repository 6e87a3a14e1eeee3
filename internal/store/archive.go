package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/mjm/serverless-blog/internal/models"
)

// The archive index is a derived per-tenant row at cache/archive whose
// months column holds exactly the set of YYYY-MM months with at least one
// published post. It is created lazily and safe to rebuild at any time.

// ArchiveAddDate merges one month into the stored month set. Adding a month
// that is already present is a no-op, so redelivered jobs converge.
func (s *Store) ArchiveAddDate(ctx context.Context, tenantID, month string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.ContentItem
		err := tx.Where("tenant_id = ? AND path = ?", tenantID, models.ArchiveCachePath).
			First(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			item = models.ContentItem{
				TenantID: tenantID,
				Path:     models.ArchiveCachePath,
				Months:   models.StringArray{month},
			}
			return tx.Create(&item).Error
		}
		if err != nil {
			return err
		}

		for _, m := range item.Months {
			if m == month {
				return nil
			}
		}
		item.Months = append(item.Months, month)
		return tx.Save(&item).Error
	})
	if err != nil {
		return fmt.Errorf("failed to add %s to archive for %s: %w", month, tenantID, err)
	}
	return nil
}

// ArchiveMonths returns the stored month set sorted most recent first. A
// tenant with no archive row yet has no months.
func (s *Store) ArchiveMonths(ctx context.Context, tenantID string) ([]string, error) {
	item, err := s.Get(ctx, tenantID, models.ArchiveCachePath)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	months := make([]string, len(item.Months))
	copy(months, item.Months)

	// YYYY-MM sorts correctly as plain strings
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months, nil
}

// ArchiveRebuild recomputes the month set from a full post list and
// overwrites the stored row.
func (s *Store) ArchiveRebuild(ctx context.Context, tenantID string, posts []models.ContentItem) error {
	seen := make(map[string]bool)
	var months models.StringArray
	for i := range posts {
		m := posts[i].PublishedMonth()
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		months = append(months, m)
	}

	item := &models.ContentItem{
		TenantID: tenantID,
		Path:     models.ArchiveCachePath,
		Months:   months,
	}
	if err := s.Put(ctx, item); err != nil {
		return fmt.Errorf("failed to rebuild archive for %s: %w", tenantID, err)
	}
	return nil
}
