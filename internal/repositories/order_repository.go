package repositories

import (
	"context"
	"errors"
	"time"

	"rtoshield/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrOrderNotFound is returned when an order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// CustomerHistory summarizes a customer's prior orders within a tenant,
// matched by normalized phone or email.
type CustomerHistory struct {
	OrderCount     int
	RTOCount       int
	DeliveredCount int
	AvgOrderValue  float64
	LastOrderAt    *time.Time
}

// RTORate is the return rate over orders with a known outcome.
func (h *CustomerHistory) RTORate() float64 {
	resolved := h.RTOCount + h.DeliveredCount
	if resolved == 0 {
		return 0
	}
	return float64(h.RTOCount) / float64(resolved)
}

// OrderRepository persists orders and serves the pipeline's order queries.
type OrderRepository interface {
	GetOrCreate(ctx context.Context, order *models.Order) (created bool, err error)
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetByExternalID(ctx context.Context, tenantID uint, externalID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uint, from, to string) error
	SetStatus(ctx context.Context, id uint, status string) error
	StalePending(ctx context.Context, grace, ceiling time.Duration) ([]models.Order, error)
	AwaitingOutcome(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	CustomerHistory(ctx context.Context, tenantID uint, phone, email string, before time.Time) (*CustomerHistory, error)
}

type gormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a gorm-backed order repository.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &gormOrderRepository{db: db}
}

// GetOrCreate inserts the order unless a row already exists for the same
// (tenant, external id). The insert-or-ignore keeps duplicate webhook
// deliveries down to a single order row.
func (r *gormOrderRepository) GetOrCreate(ctx context.Context, order *models.Order) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(order)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := r.GetByExternalID(ctx, order.TenantID, order.ExternalID)
		if err != nil {
			return false, err
		}
		*order = *existing
		return false, nil
	}
	return true, nil
}

func (r *gormOrderRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormOrderRepository) GetByExternalID(ctx context.Context, tenantID uint, externalID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantID, externalID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves the order from one status to another. The guard on
// the current status keeps concurrent transitions from clobbering each
// other; a no-op update is not an error.
func (r *gormOrderRepository) UpdateStatus(ctx context.Context, id uint, from, to string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to).Error
}

func (r *gormOrderRepository) SetStatus(ctx context.Context, id uint, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// StalePending returns orders stuck in pending longer than the grace
// period but younger than the ceiling. These are re-enqueued by the
// recovery sweep.
func (r *gormOrderRepository) StalePending(ctx context.Context, grace, ceiling time.Duration) ([]models.Order, error) {
	now := time.Now()
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ? AND created_at > ?",
			models.OrderStatusPending, now.Add(-grace), now.Add(-ceiling)).
		Find(&orders).Error
	return orders, err
}

// CustomerHistory aggregates a customer's prior orders matched by phone
// or email, excluding the current order via the before cutoff.
func (r *gormOrderRepository) CustomerHistory(ctx context.Context, tenantID uint, phone, email string, before time.Time) (*CustomerHistory, error) {
	if phone == "" && email == "" {
		return &CustomerHistory{}, nil
	}

	q := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("tenant_id = ? AND created_at < ?", tenantID, before)
	switch {
	case phone != "" && email != "":
		q = q.Where("phone_normalized = ? OR customer_email = ?", phone, email)
	case phone != "":
		q = q.Where("phone_normalized = ?", phone)
	default:
		q = q.Where("customer_email = ?", email)
	}

	var row struct {
		OrderCount     int
		RTOCount       int
		DeliveredCount int
		AvgOrderValue  float64
		LastOrderAt    *time.Time
	}
	err := q.Select(
		"COUNT(*) AS order_count, " +
			"COUNT(*) FILTER (WHERE status = 'rto') AS rto_count, " +
			"COUNT(*) FILTER (WHERE status = 'delivered') AS delivered_count, " +
			"COALESCE(AVG(amount), 0) AS avg_order_value, " +
			"MAX(created_at) AS last_order_at",
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &CustomerHistory{
		OrderCount:     row.OrderCount,
		RTOCount:       row.RTOCount,
		DeliveredCount: row.DeliveredCount,
		AvgOrderValue:  row.AvgOrderValue,
		LastOrderAt:    row.LastOrderAt,
	}, nil
}

// AwaitingOutcome returns scored orders older than the cutoff that never
// received a delivery outcome. The timeout sweep presumes these delivered.
func (r *gormOrderRepository) AwaitingOutcome(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]string{models.OrderStatusScored, models.OrderStatusApproved, models.OrderStatusVerified}, cutoff).
		Find(&orders).Error
	return orders, err
}
