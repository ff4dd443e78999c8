package models

import "time"

// Risk levels
const (
	RiskLevelLow      = "low"
	RiskLevelMedium   = "medium"
	RiskLevelHigh     = "high"
	RiskLevelCritical = "critical"
)

// Recommendations
const (
	RecommendationApprove = "approve"
	RecommendationVerify  = "verify"
	RecommendationBlock   = "block"
)

// FraudScore is the persisted result of one scoring pass. Exactly one row
// per order; a re-score overwrites the row in place.
type FraudScore struct {
	ID       uint `gorm:"primarykey"`
	OrderID  uint `gorm:"not null;uniqueIndex"`
	TenantID uint `gorm:"not null;index"`

	FinalScore     float64 `gorm:"not null"`
	RuleScore      float64
	StatScore      float64
	MLScore        float64
	RiskLevel      string `gorm:"not null"`
	Recommendation string `gorm:"not null;index"`
	Confidence     float64
	ModelVersion   string

	Signals  JSON        `gorm:"type:jsonb"`
	Reasons  StringSlice `gorm:"type:jsonb"`
	Features JSON        `gorm:"type:jsonb"`

	DurationMs int64
	ScoredAt   time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
