package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mjm/serverless-blog/internal/config"
	"github.com/mjm/serverless-blog/internal/models"
)

// ErrNotFound is returned when no row exists for the requested key.
var ErrNotFound = errors.New("item not found")

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix escapes LIKE metacharacters so a path prefix matches only
// literally. Slugs may legitimately contain underscores.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

// Store is the strongly-consistent-per-key content table shared by all
// pipeline components. Keys are (tenantID, path); cross-key operations are
// not transactional.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.Username, cfg.Password, cfg.Database, cfg.Port, cfg.SSLMode, cfg.TimeZone)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema for all pipeline models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.ContentItem{},
		&models.Mention{},
		&models.SiteConfig{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

func (s *Store) Get(ctx context.Context, tenantID, path string) (*models.ContentItem, error) {
	var item models.ContentItem
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND path = ?", tenantID, path).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", path, err)
	}
	return &item, nil
}

// Put creates or fully overwrites the row at the item's key.
func (s *Store) Put(ctx context.Context, item *models.ContentItem) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "path"}},
			UpdateAll: true,
		}).
		Create(item).Error
	if err != nil {
		return fmt.Errorf("failed to put item %s: %w", item.Path, err)
	}
	return nil
}

// QueryPrefix returns all items whose path starts with the given prefix.
func (s *Store) QueryPrefix(ctx context.Context, tenantID, prefix string) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND path LIKE ? ESCAPE '\\'", tenantID, likePrefix(prefix)).
		Order("path ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query prefix %s: %w", prefix, err)
	}
	return items, nil
}

func (s *Store) Delete(ctx context.Context, tenantID, path string) error {
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND path = ?", tenantID, path).
		Delete(&models.ContentItem{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete item %s: %w", path, err)
	}
	return nil
}

func (s *Store) GetSiteConfig(ctx context.Context, tenantID string) (*models.SiteConfig, error) {
	var cfg models.SiteConfig
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site config for %s: %w", tenantID, err)
	}
	return &cfg, nil
}

func (s *Store) PutSiteConfig(ctx context.Context, cfg *models.SiteConfig) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to put site config for %s: %w", cfg.TenantID, err)
	}
	return nil
}

// RecentPosts returns the most recently published posts. Ties on published
// break on path so the ordering is total.
func (s *Store) RecentPosts(ctx context.Context, tenantID string, limit int) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND path LIKE ? ESCAPE '\\' AND published <> ''", tenantID, likePrefix(models.PostPrefix)).
		Order("published DESC").
		Order("path ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent posts: %w", err)
	}
	return items, nil
}

func (s *Store) AllPosts(ctx context.Context, tenantID string) ([]models.ContentItem, error) {
	return s.QueryPrefix(ctx, tenantID, models.PostPrefix)
}

func (s *Store) AllPages(ctx context.Context, tenantID string) ([]models.ContentItem, error) {
	return s.QueryPrefix(ctx, tenantID, models.PagePrefix)
}

// PostsForMonth returns every post published in the YYYY-MM month, using an
// inclusive lexicographic range over the ISO timestamp.
func (s *Store) PostsForMonth(ctx context.Context, tenantID, month string) ([]models.ContentItem, error) {
	var items []models.ContentItem
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND path LIKE ? ESCAPE '\\' AND published BETWEEN ? AND ?",
			tenantID, likePrefix(models.PostPrefix), month+"-00", month+"-99").
		Order("published ASC").
		Order("path ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query posts for month %s: %w", month, err)
	}
	return items, nil
}

// GetPostByURL resolves a public post URL back to its content row. The URL
// host is the tenant id and the path maps onto the posts/ keyspace.
func (s *Store) GetPostByURL(ctx context.Context, rawURL string) (*models.ContentItem, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("target URL %q has no host: %w", rawURL, ErrNotFound)
	}

	short := strings.Trim(u.Path, "/")
	if short == "" {
		return nil, ErrNotFound
	}

	return s.Get(ctx, u.Host, models.PostPrefix+short)
}

// MentionsForPost returns all stored mentions of the post, oldest first.
func (s *Store) MentionsForPost(ctx context.Context, post *models.ContentItem) ([]models.Mention, error) {
	var mentions []models.Mention
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND path LIKE ? ESCAPE '\\'", post.TenantID, likePrefix(models.MentionPrefixForPost(post))).
		Order("path ASC").
		Find(&mentions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query mentions for %s: %w", post.Path, err)
	}
	return mentions, nil
}

func (s *Store) CountMentions(ctx context.Context, post *models.ContentItem) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Mention{}).
		Where("tenant_id = ? AND path LIKE ? ESCAPE '\\'", post.TenantID, likePrefix(models.MentionPrefixForPost(post))).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count mentions for %s: %w", post.Path, err)
	}
	return int(count), nil
}

// PutMention creates or overwrites the mention at its derived path.
func (s *Store) PutMention(ctx context.Context, mention *models.Mention) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "path"}},
			UpdateAll: true,
		}).
		Create(mention).Error
	if err != nil {
		return fmt.Errorf("failed to put mention %s: %w", mention.Path, err)
	}
	return nil
}
