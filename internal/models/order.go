package models

import "time"

// Order lifecycle statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusScored    = "scored"
	OrderStatusApproved  = "approved"
	OrderStatusVerified  = "verified"
	OrderStatusBlocked   = "blocked"
	OrderStatusDelivered = "delivered"
	OrderStatusRTO       = "rto"
)

// Payment methods
const (
	PaymentMethodCOD     = "cod"
	PaymentMethodPrepaid = "prepaid"
)

// Order is the unit of work for the scoring pipeline. One row per
// (tenant, external id); created at ingestion in pending state and moved
// forward by the worker, staff decisions and delivery outcomes.
type Order struct {
	ID         uint   `gorm:"primarykey"`
	TenantID   uint   `gorm:"not null;uniqueIndex:idx_orders_tenant_external,priority:1"`
	ExternalID string `gorm:"not null;uniqueIndex:idx_orders_tenant_external,priority:2"`
	Platform   string `gorm:"not null"`

	OrderNumber     string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	PhoneNormalized string `gorm:"index"`
	PhoneCarrier    string
	CustomerIP      string
	ShippingAddress string
	AddressKey      string `gorm:"index"`
	ShippingCity    string `gorm:"index"`

	PaymentMethod   string  `gorm:"not null;default:'cod'"`
	Amount          float64 `gorm:"not null"`
	ItemCount       int     `gorm:"default:1"`
	DiscountPercent float64 `gorm:"default:0"`

	Status   string `gorm:"not null;default:'pending';index"`
	PlacedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCOD reports whether the order pays cash on delivery.
func (o *Order) IsCOD() bool {
	return o.PaymentMethod == PaymentMethodCOD
}

// HasOutcome reports whether the order reached a terminal delivery state.
func (o *Order) HasOutcome() bool {
	return o.Status == OrderStatusDelivered || o.Status == OrderStatusRTO
}
