package models

import "time"

// Blacklist entry types
const (
	BlacklistTypePhone = "phone"
	BlacklistTypeEmail = "email"
	BlacklistTypeIP    = "ip"
)

// BlacklistEntry marks an identity that forces a score floor. Entries may
// expire; a nil ExpiresAt means permanent.
type BlacklistEntry struct {
	ID              uint   `gorm:"primarykey"`
	TenantID        uint   `gorm:"not null;uniqueIndex:idx_blacklist_tenant_type_value,priority:1"`
	Type            string `gorm:"not null;uniqueIndex:idx_blacklist_tenant_type_value,priority:2"`
	Value           string `gorm:"not null"`
	NormalizedValue string `gorm:"not null;uniqueIndex:idx_blacklist_tenant_type_value,priority:3"`
	Reason          string
	ExpiresAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the entry is currently in force.
func (b *BlacklistEntry) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}
