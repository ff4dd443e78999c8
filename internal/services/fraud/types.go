package fraud

import (
	"time"

	"rtoshield/internal/services/ml"
	"rtoshield/internal/services/rules"
	"rtoshield/internal/services/statistical"
)

// Result is one completed scoring pass.
type Result struct {
	OrderID  uint `json:"order_id"`
	TenantID uint `json:"tenant_id"`

	FinalScore float64 `json:"final_score"`
	RuleScore  float64 `json:"rule_score"`
	StatScore  float64 `json:"stat_score"`
	MLScore    float64 `json:"ml_score"`

	RiskLevel      string  `json:"risk_level"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	ModelVersion   string  `json:"model_version"`

	Reasons     []string             `json:"reasons"`
	RuleHits    []rules.Hit          `json:"rule_hits,omitempty"`
	StatSignals []statistical.Signal `json:"stat_signals,omitempty"`
	TopFactors  []ml.Factor          `json:"top_factors,omitempty"`

	Duration time.Duration `json:"-"`
}
