package models

import "time"

// PhoneRecord is the rolling per-phone aggregate. Mutated by completed
// scoring passes and resolved outcomes; read concurrently by in-flight
// scoring calls. Eventual consistency is acceptable here.
type PhoneRecord struct {
	ID              uint   `gorm:"primarykey"`
	PhoneNormalized string `gorm:"not null;uniqueIndex"`
	Carrier         string
	IsValid         bool `gorm:"default:true"`
	IsMobile        bool `gorm:"default:true"`

	TotalOrders int     `gorm:"default:0"`
	TotalRTO    int     `gorm:"default:0"`
	RTORate     float64 `gorm:"default:0"`

	FirstSeenAt time.Time
	LastOrderAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddressStat is the rolling aggregate for one normalized shipping
// address within a tenant.
type AddressStat struct {
	ID         uint   `gorm:"primarykey"`
	TenantID   uint   `gorm:"not null;uniqueIndex:idx_address_stats_tenant_key,priority:1"`
	AddressKey string `gorm:"not null;uniqueIndex:idx_address_stats_tenant_key,priority:2"`
	City       string

	TotalOrders    int     `gorm:"default:0"`
	TotalRTO       int     `gorm:"default:0"`
	RTORate        float64 `gorm:"default:0"`
	DistinctPhones int     `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CityStat is the rolling aggregate for one shipping city across all
// tenants.
type CityStat struct {
	ID   uint   `gorm:"primarykey"`
	City string `gorm:"not null;uniqueIndex"`

	TotalOrders int     `gorm:"default:0"`
	TotalRTO    int     `gorm:"default:0"`
	RTORate     float64 `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
