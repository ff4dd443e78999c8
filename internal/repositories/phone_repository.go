package repositories

import (
	"context"
	"errors"
	"time"

	"rtoshield/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPhoneNotFound is returned when no aggregate exists for a phone.
var ErrPhoneNotFound = errors.New("phone record not found")

// PhoneRepository maintains the rolling per-phone aggregates.
type PhoneRepository interface {
	GetByNormalized(ctx context.Context, phone string) (*models.PhoneRecord, error)
	RecordOrder(ctx context.Context, phone, carrier string, valid, mobile bool, at time.Time) error
	RecordOutcome(ctx context.Context, phone string, isRTO bool) error
}

type gormPhoneRepository struct {
	db *gorm.DB
}

// NewPhoneRepository creates a gorm-backed phone repository.
func NewPhoneRepository(db *gorm.DB) PhoneRepository {
	return &gormPhoneRepository{db: db}
}

func (r *gormPhoneRepository) GetByNormalized(ctx context.Context, phone string) (*models.PhoneRecord, error) {
	var rec models.PhoneRecord
	err := r.db.WithContext(ctx).Where("phone_normalized = ?", phone).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPhoneNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordOrder upserts the phone aggregate for a newly scored order.
func (r *gormPhoneRepository) RecordOrder(ctx context.Context, phone, carrier string, valid, mobile bool, at time.Time) error {
	rec := models.PhoneRecord{
		PhoneNormalized: phone,
		Carrier:         carrier,
		IsValid:         valid,
		IsMobile:        mobile,
		TotalOrders:     1,
		FirstSeenAt:     at,
		LastOrderAt:     at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "phone_normalized"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_orders":  gorm.Expr("phone_records.total_orders + 1"),
				"last_order_at": at,
				"rto_rate":      gorm.Expr("phone_records.total_rto::float / (phone_records.total_orders + 1)"),
				"updated_at":    time.Now(),
			}),
		}).
		Create(&rec).Error
}

// RecordOutcome bumps the RTO counters once the delivery outcome is known.
func (r *gormPhoneRepository) RecordOutcome(ctx context.Context, phone string, isRTO bool) error {
	if !isRTO {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PhoneRecord{}).
		Where("phone_normalized = ?", phone).
		Updates(map[string]interface{}{
			"total_rto": gorm.Expr("total_rto + 1"),
			"rto_rate":  gorm.Expr("(total_rto + 1)::float / GREATEST(total_orders, 1)"),
		}).Error
}
