package repositories

import (
	"context"
	"errors"

	"rtoshield/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrScoreNotFound is returned when an order has no persisted score.
var ErrScoreNotFound = errors.New("fraud score not found")

// ScoreRepository persists scoring results, one row per order.
type ScoreRepository interface {
	Upsert(ctx context.Context, score *models.FraudScore) error
	GetByOrderID(ctx context.Context, orderID uint) (*models.FraudScore, error)
}

type gormScoreRepository struct {
	db *gorm.DB
}

// NewScoreRepository creates a gorm-backed score repository.
func NewScoreRepository(db *gorm.DB) ScoreRepository {
	return &gormScoreRepository{db: db}
}

// Upsert writes the scoring result. A re-score of the same order
// replaces the row in place rather than appending a duplicate.
func (r *gormScoreRepository) Upsert(ctx context.Context, score *models.FraudScore) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"final_score", "rule_score", "stat_score", "ml_score",
				"risk_level", "recommendation", "confidence", "model_version",
				"signals", "reasons", "features", "duration_ms", "scored_at",
				"updated_at",
			}),
		}).
		Create(score).Error
}

func (r *gormScoreRepository) GetByOrderID(ctx context.Context, orderID uint) (*models.FraudScore, error) {
	var score models.FraudScore
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&score).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScoreNotFound
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}
