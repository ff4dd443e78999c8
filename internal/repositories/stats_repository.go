package repositories

import (
	"context"
	"errors"
	"time"

	"rtoshield/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStatNotFound is returned when no aggregate exists for a key.
var ErrStatNotFound = errors.New("aggregate not found")

// StatsRepository maintains the rolling address and city aggregates.
type StatsRepository interface {
	GetAddress(ctx context.Context, tenantID uint, addressKey string) (*models.AddressStat, error)
	GetCity(ctx context.Context, city string) (*models.CityStat, error)
	RecordOrder(ctx context.Context, tenantID uint, addressKey, city string, newPhone bool) error
	RecordOutcome(ctx context.Context, tenantID uint, addressKey, city string, isRTO bool) error
}

type gormStatsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a gorm-backed stats repository.
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &gormStatsRepository{db: db}
}

func (r *gormStatsRepository) GetAddress(ctx context.Context, tenantID uint, addressKey string) (*models.AddressStat, error) {
	var stat models.AddressStat
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND address_key = ?", tenantID, addressKey).
		First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

func (r *gormStatsRepository) GetCity(ctx context.Context, city string) (*models.CityStat, error) {
	var stat models.CityStat
	err := r.db.WithContext(ctx).Where("city = ?", city).First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrStatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

func (r *gormStatsRepository) RecordOrder(ctx context.Context, tenantID uint, addressKey, city string, newPhone bool) error {
	phoneDelta := 0
	if newPhone {
		phoneDelta = 1
	}
	addr := models.AddressStat{
		TenantID:       tenantID,
		AddressKey:     addressKey,
		City:           city,
		TotalOrders:    1,
		DistinctPhones: 1,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "address_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_orders":    gorm.Expr("address_stats.total_orders + 1"),
				"distinct_phones": gorm.Expr("address_stats.distinct_phones + ?", phoneDelta),
				"rto_rate":        gorm.Expr("address_stats.total_rto::float / (address_stats.total_orders + 1)"),
				"updated_at":      time.Now(),
			}),
		}).
		Create(&addr).Error
	if err != nil {
		return err
	}

	cityStat := models.CityStat{City: city, TotalOrders: 1}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "city"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_orders": gorm.Expr("city_stats.total_orders + 1"),
				"rto_rate":     gorm.Expr("city_stats.total_rto::float / (city_stats.total_orders + 1)"),
				"updated_at":   time.Now(),
			}),
		}).
		Create(&cityStat).Error
}

func (r *gormStatsRepository) RecordOutcome(ctx context.Context, tenantID uint, addressKey, city string, isRTO bool) error {
	if !isRTO {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.AddressStat{}).
		Where("tenant_id = ? AND address_key = ?", tenantID, addressKey).
		Updates(map[string]interface{}{
			"total_rto": gorm.Expr("total_rto + 1"),
			"rto_rate":  gorm.Expr("(total_rto + 1)::float / GREATEST(total_orders, 1)"),
		}).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.CityStat{}).
		Where("city = ?", city).
		Updates(map[string]interface{}{
			"total_rto": gorm.Expr("total_rto + 1"),
			"rto_rate":  gorm.Expr("(total_rto + 1)::float / GREATEST(total_orders, 1)"),
		}).Error
}
