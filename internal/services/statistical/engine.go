package statistical

import (
	"fmt"

	"rtoshield/internal/config"
	"rtoshield/internal/services/features"
)

// Signal is one historical rate's contribution to the score.
type Signal struct {
	Name         string  `json:"name"`
	Rate         float64 `json:"rate"`
	SampleSize   int     `json:"sample_size"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// Result is the statistical layer's verdict for one order.
type Result struct {
	Score       float64  `json:"score"`
	TotalWeight float64  `json:"total_weight"`
	Signals     []Signal `json:"signals"`
}

// Engine combines time-decayed historical RTO rates into one score.
// Stateless and safe for concurrent use.
type Engine interface {
	Evaluate(f *features.OrderFeatures) *Result
}

type engine struct {
	weights *config.StatWeights
}

// NewEngine builds the engine around a loaded weight table.
func NewEngine(weights *config.StatWeights) Engine {
	if weights == nil {
		panic("stat weights are required")
	}
	return &engine{weights: weights}
}

// Evaluate weighs each historical rate by its configured share, scaled
// by sample-size sufficiency and, for customer history, by recency.
// Signals below their sample floor contribute nothing at all. The
// denominator never drops below the configured floor, so a single
// low-confidence signal cannot dominate the score.
func (e *engine) Evaluate(f *features.OrderFeatures) *Result {
	res := &Result{}
	var sum float64

	for _, in := range []struct {
		name  string
		rate  float64
		count float64
		decay float64
	}{
		{"phone", f.PhoneRTORate, f.PhoneOrderCount, 1},
		{"address", f.AddressRTORate, f.AddressOrderCount, 1},
		{"city", f.CityRTORate, f.CityOrderCount, 1},
		{"customer", f.CustomerRTORate, f.CustomerOrderCount, e.weights.DecayFor(f.DaysSinceLastOrder)},
	} {
		cfg, ok := e.weights.Signals[in.name]
		if !ok || int(in.count) < cfg.MinOrders {
			continue
		}
		weight := cfg.Weight * in.decay
		contribution := in.rate * 100 * weight
		sum += contribution
		res.TotalWeight += weight
		res.Signals = append(res.Signals, Signal{
			Name:         in.name,
			Rate:         in.rate,
			SampleSize:   int(in.count),
			Weight:       weight,
			Contribution: contribution,
			Detail:       fmt.Sprintf("%.0f%% return rate over %d orders", in.rate*100, int(in.count)),
		})
	}

	score := 0.0
	if len(res.Signals) > 0 {
		denom := res.TotalWeight
		if denom < e.weights.MinTotalWeight {
			denom = e.weights.MinTotalWeight
		}
		score = sum / denom
	}

	if penalty := e.velocityPenalty(f); penalty > 0 {
		score += penalty
		res.Signals = append(res.Signals, Signal{
			Name:         "identity_velocity",
			SampleSize:   int(f.AddressDistinctPhones),
			Contribution: penalty,
			Detail:       fmt.Sprintf("%d distinct phones share this address", int(f.AddressDistinctPhones)),
		})
	}

	res.Score = clamp(score, 0, 100)
	return res
}

// velocityPenalty escalates once too many distinct identities share one
// address. The anti-farming heuristic from the address aggregate.
func (e *engine) velocityPenalty(f *features.OrderFeatures) float64 {
	v := e.weights.Velocity
	excess := f.AddressDistinctPhones - float64(v.DistinctIdentityThreshold)
	if excess <= 0 {
		return 0
	}
	penalty := excess * v.PenaltyPerIdentity
	if penalty > v.MaxPenalty {
		penalty = v.MaxPenalty
	}
	return penalty
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
