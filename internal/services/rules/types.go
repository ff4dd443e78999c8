package rules

// Severity buckets a rule hit for reporting. It does not affect the
// score; the delta does.
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Hit is one rule that fired on an order.
type Hit struct {
	Rule     string  `json:"rule"`
	Severity string  `json:"severity"`
	Delta    float64 `json:"delta"`
	Detail   string  `json:"detail"`
}

// Result is the rule layer's verdict for one order.
type Result struct {
	Score float64 `json:"score"`
	Hits  []Hit   `json:"hits"`
}
