package repositories

import (
	"context"
	"errors"

	"rtoshield/internal/models"

	"gorm.io/gorm"
)

// ErrTenantNotFound is returned when no tenant matches the lookup.
var ErrTenantNotFound = errors.New("tenant not found")

// TenantRepository serves tenant lookups for ingestion auth and scoring
// configuration.
type TenantRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Tenant, error)
	GetByAPIKeyDigest(ctx context.Context, digest string) (*models.Tenant, error)
}

type gormTenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository creates a gorm-backed tenant repository.
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &gormTenantRepository{db: db}
}

func (r *gormTenantRepository) GetByID(ctx context.Context, id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).First(&tenant, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (r *gormTenantRepository) GetByAPIKeyDigest(ctx context.Context, digest string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Where("api_key_digest = ? AND active = ?", digest, true).
		First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}
