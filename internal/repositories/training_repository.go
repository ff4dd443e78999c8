package repositories

import (
	"context"

	"rtoshield/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TrainingEventRepository persists the labelled training corpus.
type TrainingEventRepository interface {
	// InsertIgnore writes the event unless one already exists for the
	// order. Returns true when the event was actually inserted.
	InsertIgnore(ctx context.Context, event *models.TrainingEvent) (bool, error)
	CountUnused(ctx context.Context, tenantID uint) (int64, error)
	MarkUsed(ctx context.Context, tenantID uint, upTo uint) error
}

type gormTrainingEventRepository struct {
	db *gorm.DB
}

// NewTrainingEventRepository creates a gorm-backed training event repository.
func NewTrainingEventRepository(db *gorm.DB) TrainingEventRepository {
	return &gormTrainingEventRepository{db: db}
}

func (r *gormTrainingEventRepository) InsertIgnore(ctx context.Context, event *models.TrainingEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormTrainingEventRepository) CountUnused(ctx context.Context, tenantID uint) (int64, error) {
	var count int64
	q := r.db.WithContext(ctx).
		Model(&models.TrainingEvent{}).
		Where("used = ?", false)
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	err := q.Count(&count).Error
	return count, err
}

// MarkUsed flags events consumed by an external retraining run.
func (r *gormTrainingEventRepository) MarkUsed(ctx context.Context, tenantID uint, upTo uint) error {
	q := r.db.WithContext(ctx).
		Model(&models.TrainingEvent{}).
		Where("used = ? AND id <= ?", false, upTo)
	if tenantID != 0 {
		q = q.Where("tenant_id = ?", tenantID)
	}
	return q.Update("used", true).Error
}
