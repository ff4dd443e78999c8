package models

import "time"

// Outcome sources
const (
	OutcomeSourceScan    = "scan"
	OutcomeSourceTimeout = "timeout"
)

// TrainingEvent is an immutable labelled snapshot of one order's feature
// vector and prediction, written exactly once when the delivery outcome
// becomes known. Label 0 = delivered, 1 = returned.
type TrainingEvent struct {
	ID       uint   `gorm:"primarykey"`
	EventID  string `gorm:"not null;uniqueIndex"`
	OrderID  uint   `gorm:"not null;uniqueIndex"`
	TenantID uint   `gorm:"not null;index"`

	Features          JSON    `gorm:"type:jsonb;not null"`
	TrueLabel         int     `gorm:"not null"`
	PredictedScore    float64 `gorm:"not null"`
	PredictionCorrect bool
	OutcomeSource     string `gorm:"not null"`

	Used bool `gorm:"default:false;index"`

	CreatedAt time.Time
}
