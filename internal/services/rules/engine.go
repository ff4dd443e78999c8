package rules

import (
	"fmt"

	"rtoshield/internal/services/features"
)

// Score deltas. Positive deltas raise risk, negative ones are trust
// signals earned by history. The two phone-history tiers stack: a
// chronic returner crosses the elevated cutoff on the way to the high
// one and earns both deltas.
const (
	deltaBlacklisted      = 40
	deltaHighRTOPhone     = 55
	deltaElevatedRTOPhone = 20
	deltaInvalidPhone     = 25
	deltaAddressFarming   = 20
	deltaHighValueFirst   = 15
	deltaCODFirstOrder    = 10
	deltaHighDiscountCOD  = 10
	deltaRiskyCity        = 10
	deltaLandlinePhone    = 8
	deltaNightOrder       = 5
	deltaCleanHistory     = -15
	deltaRepeatCustomer   = -10
)

// Sample-size and rate cutoffs for the history rules.
const (
	minPhoneOrders    = 3
	highRTORate       = 0.6
	elevatedRTORate   = 0.4
	cleanRTORate      = 0.1
	riskyCityTier     = 3
	farmingPhoneLimit = 3
)

// Engine scores one feature vector against the deterministic rule
// table. It is stateless and safe for concurrent use.
type Engine interface {
	Evaluate(f *features.OrderFeatures) *Result
}

type rule struct {
	name     string
	severity string
	eval     func(f *features.OrderFeatures) (float64, string, bool)
}

type engine struct {
	rules []rule
}

// NewEngine builds the engine with the full rule table.
func NewEngine() Engine {
	return &engine{rules: ruleTable()}
}

// Evaluate runs every rule and sums the deltas. Rules that do not fire
// are omitted from the hit list. The score is clamped to [0, 100] but
// the hit deltas are reported raw so the caller can reconstruct the sum.
func (e *engine) Evaluate(f *features.OrderFeatures) *Result {
	res := &Result{}
	total := 0.0
	for _, r := range e.rules {
		delta, detail, fired := r.eval(f)
		if !fired || delta == 0 {
			continue
		}
		total += delta
		res.Hits = append(res.Hits, Hit{
			Rule:     r.name,
			Severity: r.severity,
			Delta:    delta,
			Detail:   detail,
		})
	}
	res.Score = clamp(total, 0, 100)
	return res
}

func ruleTable() []rule {
	return []rule{
		{
			name:     "blacklisted_identity",
			severity: SeverityCritical,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if !f.Blacklisted() {
					return 0, "", false
				}
				return deltaBlacklisted, blacklistDetail(f), true
			},
		},
		{
			name:     "high_rto_phone",
			severity: SeverityCritical,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if f.PhoneOrderCount < minPhoneOrders || f.PhoneRTORate < highRTORate {
					return 0, "", false
				}
				return deltaHighRTOPhone, fmt.Sprintf("phone returned %.0f%% of %d orders", f.PhoneRTORate*100, int(f.PhoneOrderCount)), true
			},
		},
		{
			name:     "elevated_rto_phone",
			severity: SeverityHigh,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if f.PhoneOrderCount < minPhoneOrders || f.PhoneRTORate < elevatedRTORate {
					return 0, "", false
				}
				return deltaElevatedRTOPhone, fmt.Sprintf("phone return rate of %.0f%% over %d orders", f.PhoneRTORate*100, int(f.PhoneOrderCount)), true
			},
		},
		{
			name:     "invalid_phone",
			severity: SeverityHigh,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if f.PhoneValid {
					return 0, "", false
				}
				return deltaInvalidPhone, "phone number did not normalize to a known carrier", true
			},
		},
		{
			name:     "landline_phone",
			severity: SeverityMedium,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if !f.PhoneValid || f.PhoneIsMobile {
					return 0, "", false
				}
				return deltaLandlinePhone, "valid number but not a mobile subscriber", true
			},
		},
		{
			name:     "address_farming",
			severity: SeverityHigh,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if f.AddressDistinctPhones <= farmingPhoneLimit {
					return 0, "", false
				}
				return deltaAddressFarming, fmt.Sprintf("%d distinct phones ordered to this address", int(f.AddressDistinctPhones)), true
			},
		},
		{
			name:     "high_value_cod_first_order",
			severity: SeverityMedium,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if !f.IsCOD || !f.IsFirstOrder || !f.IsHighValue {
					return 0, "", false
				}
				return deltaHighValueFirst, fmt.Sprintf("first COD order of %.0f", f.OrderAmount), true
			},
		},
		{
			name:     "cod_first_order",
			severity: SeverityLow,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if !f.IsCOD || !f.IsFirstOrder || f.IsHighValue {
					return 0, "", false
				}
				return deltaCODFirstOrder, "first order from this customer, paying on delivery", true
			},
		},
		{
			name:     "high_discount_cod",
			severity: SeverityMedium,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if !f.IsCOD || !f.IsHighDiscount {
					return 0, "", false
				}
				return deltaHighDiscountCOD, fmt.Sprintf("%.0f%% discount on a COD order", f.DiscountPercent), true
			},
		},
		{
			name:     "risky_city",
			severity: SeverityMedium,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if f.CityRiskTier < riskyCityTier {
					return 0, "", false
				}
				return deltaRiskyCity, fmt.Sprintf("destination city is delivery risk tier %d", int(f.CityRiskTier)), true
			},
		},
		{
			name:     "night_order",
			severity: SeverityLow,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if !f.IsNightOrder {
					return 0, "", false
				}
				return deltaNightOrder, fmt.Sprintf("placed at %02d:00", int(f.OrderHour)), true
			},
		},
		{
			name:     "clean_history",
			severity: SeverityInfo,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if f.PhoneOrderCount < minPhoneOrders || f.PhoneRTORate > cleanRTORate {
					return 0, "", false
				}
				return deltaCleanHistory, fmt.Sprintf("%d prior orders with %.0f%% returns", int(f.PhoneOrderCount), f.PhoneRTORate*100), true
			},
		},
		{
			name:     "repeat_customer",
			severity: SeverityInfo,
			eval: func(f *features.OrderFeatures) (float64, string, bool) {
				if f.CustomerOrderCount < 2 || f.CustomerRTORate > cleanRTORate {
					return 0, "", false
				}
				return deltaRepeatCustomer, fmt.Sprintf("customer completed %d prior orders", int(f.CustomerOrderCount)), true
			},
		},
	}
}

func blacklistDetail(f *features.OrderFeatures) string {
	switch {
	case f.PhoneBlacklisted:
		return "phone number is blacklisted"
	case f.EmailBlacklisted:
		return "email address is blacklisted"
	default:
		return "IP address is blacklisted"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
