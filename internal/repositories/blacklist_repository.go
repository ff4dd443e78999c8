package repositories

import (
	"context"
	"time"

	"rtoshield/internal/models"

	"gorm.io/gorm"
)

// BlacklistRepository manages blacklist entries and membership lookups.
type BlacklistRepository interface {
	IsListed(ctx context.Context, tenantID uint, entryType, normalizedValue string) (bool, error)
	Create(ctx context.Context, entry *models.BlacklistEntry) error
	Delete(ctx context.Context, tenantID, id uint) error
	List(ctx context.Context, tenantID uint) ([]models.BlacklistEntry, error)
}

type gormBlacklistRepository struct {
	db *gorm.DB
}

// NewBlacklistRepository creates a gorm-backed blacklist repository.
func NewBlacklistRepository(db *gorm.DB) BlacklistRepository {
	return &gormBlacklistRepository{db: db}
}

func (r *gormBlacklistRepository) IsListed(ctx context.Context, tenantID uint, entryType, normalizedValue string) (bool, error) {
	if normalizedValue == "" {
		return false, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BlacklistEntry{}).
		Where("tenant_id = ? AND type = ? AND normalized_value = ?", tenantID, entryType, normalizedValue).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Count(&count).Error
	return count > 0, err
}

func (r *gormBlacklistRepository) Create(ctx context.Context, entry *models.BlacklistEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormBlacklistRepository) Delete(ctx context.Context, tenantID, id uint) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.BlacklistEntry{}).Error
}

func (r *gormBlacklistRepository) List(ctx context.Context, tenantID uint) ([]models.BlacklistEntry, error) {
	var entries []models.BlacklistEntry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
