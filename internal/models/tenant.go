package models

import "time"

// Tenant plans, ordered from highest to lowest scoring priority.
const (
	PlanEnterprise = "enterprise"
	PlanPro        = "pro"
	PlanGrowth     = "growth"
	PlanStarter    = "starter"
	PlanFree       = "free"
)

// Tenant is one installed store. Carries the webhook secret, a hashed API
// key and the per-tenant scoring configuration.
type Tenant struct {
	ID   uint   `gorm:"primarykey"`
	Name string `gorm:"not null"`
	Plan string `gorm:"not null;default:'free'"`

	APIKeyDigest  string `gorm:"not null;uniqueIndex"`
	APIKeyHash    string `gorm:"not null"`
	WebhookSecret string `gorm:"not null"`

	VerifyThreshold float64 `gorm:"default:40"`
	BlockThreshold  float64 `gorm:"default:70"`
	RuleWeight      float64 `gorm:"default:0.30"`
	StatWeight      float64 `gorm:"default:0.30"`
	MLWeight        float64 `gorm:"default:0.40"`

	Active bool `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlanPriority maps the tenant plan to a queue priority band. Lower is
// served first.
func (t *Tenant) PlanPriority() int {
	switch t.Plan {
	case PlanEnterprise:
		return 0
	case PlanPro:
		return 1
	case PlanGrowth:
		return 2
	case PlanStarter:
		return 3
	default:
		return 4
	}
}
