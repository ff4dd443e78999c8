package rules

import (
	"testing"

	"rtoshield/internal/services/features"

	"github.com/stretchr/testify/assert"
)

func cleanFeatures() *features.OrderFeatures {
	return &features.OrderFeatures{
		OrderAmount:         2000,
		ItemCount:           1,
		PhoneValid:          true,
		PhoneIsMobile:       true,
		CityRiskTier:        1,
		AmountVsCustomerAvg: 1,
	}
}

func TestEvaluate_NoRulesFired(t *testing.T) {
	res := NewEngine().Evaluate(cleanFeatures())
	assert.Zero(t, res.Score)
	assert.Empty(t, res.Hits)
}

func TestEvaluate_RuleTable(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(f *features.OrderFeatures)
		wantRule  string
		wantDelta float64
	}{
		{
			name:      "blacklisted phone",
			mutate:    func(f *features.OrderFeatures) { f.PhoneBlacklisted = true },
			wantRule:  "blacklisted_identity",
			wantDelta: 40,
		},
		{
			name: "high rto phone",
			mutate: func(f *features.OrderFeatures) {
				f.PhoneOrderCount = 5
				f.PhoneRTOCount = 4
				f.PhoneRTORate = 0.8
			},
			wantRule:  "high_rto_phone",
			wantDelta: 55,
		},
		{
			name: "elevated rto phone",
			mutate: func(f *features.OrderFeatures) {
				f.PhoneOrderCount = 5
				f.PhoneRTORate = 0.5
			},
			wantRule:  "elevated_rto_phone",
			wantDelta: 20,
		},
		{
			name:      "invalid phone",
			mutate:    func(f *features.OrderFeatures) { f.PhoneValid = false },
			wantRule:  "invalid_phone",
			wantDelta: 25,
		},
		{
			name:      "landline phone",
			mutate:    func(f *features.OrderFeatures) { f.PhoneIsMobile = false },
			wantRule:  "landline_phone",
			wantDelta: 8,
		},
		{
			name:      "address farming",
			mutate:    func(f *features.OrderFeatures) { f.AddressDistinctPhones = 6 },
			wantRule:  "address_farming",
			wantDelta: 20,
		},
		{
			name: "high value cod first order",
			mutate: func(f *features.OrderFeatures) {
				f.IsCOD = true
				f.IsFirstOrder = true
				f.IsHighValue = true
				f.OrderAmount = 9000
			},
			wantRule:  "high_value_cod_first_order",
			wantDelta: 15,
		},
		{
			name: "cod first order",
			mutate: func(f *features.OrderFeatures) {
				f.IsCOD = true
				f.IsFirstOrder = true
			},
			wantRule:  "cod_first_order",
			wantDelta: 10,
		},
		{
			name: "high discount cod",
			mutate: func(f *features.OrderFeatures) {
				f.IsCOD = true
				f.IsHighDiscount = true
				f.DiscountPercent = 55
			},
			wantRule:  "high_discount_cod",
			wantDelta: 10,
		},
		{
			name:      "risky city",
			mutate:    func(f *features.OrderFeatures) { f.CityRiskTier = 4 },
			wantRule:  "risky_city",
			wantDelta: 10,
		},
		{
			name: "night order",
			mutate: func(f *features.OrderFeatures) {
				f.IsNightOrder = true
				f.OrderHour = 2
			},
			wantRule:  "night_order",
			wantDelta: 5,
		},
		{
			name: "clean history trust signal",
			mutate: func(f *features.OrderFeatures) {
				f.PhoneOrderCount = 8
				f.PhoneRTORate = 0
			},
			wantRule:  "clean_history",
			wantDelta: -15,
		},
		{
			name: "repeat customer trust signal",
			mutate: func(f *features.OrderFeatures) {
				f.CustomerOrderCount = 4
				f.CustomerRTORate = 0
			},
			wantRule:  "repeat_customer",
			wantDelta: -10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := cleanFeatures()
			tt.mutate(f)
			res := NewEngine().Evaluate(f)

			var hit *Hit
			for i := range res.Hits {
				if res.Hits[i].Rule == tt.wantRule {
					hit = &res.Hits[i]
				}
			}
			assert.NotNil(t, hit, "expected rule %s to fire", tt.wantRule)
			if hit != nil {
				assert.Equal(t, tt.wantDelta, hit.Delta)
				assert.NotEmpty(t, hit.Detail)
			}
		})
	}
}

func TestEvaluate_ChronicPhoneTiersStack(t *testing.T) {
	f := cleanFeatures()
	f.PhoneOrderCount = 5
	f.PhoneRTORate = 0.8
	res := NewEngine().Evaluate(f)

	fired := make(map[string]bool)
	for _, h := range res.Hits {
		fired[h.Rule] = true
	}
	assert.True(t, fired["high_rto_phone"])
	assert.True(t, fired["elevated_rto_phone"], "a chronic returner crosses both tiers")
	assert.Equal(t, 75.0, res.Score)
}

func TestEvaluate_ElevatedTierAlone(t *testing.T) {
	f := cleanFeatures()
	f.PhoneOrderCount = 5
	f.PhoneRTORate = 0.5
	res := NewEngine().Evaluate(f)

	assert.Len(t, res.Hits, 1)
	assert.Equal(t, "elevated_rto_phone", res.Hits[0].Rule)
	assert.Equal(t, 20.0, res.Score)
}

func TestEvaluate_ClampsToZero(t *testing.T) {
	f := cleanFeatures()
	f.PhoneOrderCount = 10
	f.PhoneRTORate = 0
	f.CustomerOrderCount = 10
	f.CustomerRTORate = 0
	res := NewEngine().Evaluate(f)

	assert.Zero(t, res.Score)
	assert.Len(t, res.Hits, 2)
}

func TestEvaluate_ClampsToHundred(t *testing.T) {
	f := cleanFeatures()
	f.PhoneBlacklisted = true
	f.EmailBlacklisted = true
	f.PhoneValid = false
	f.PhoneOrderCount = 5
	f.PhoneRTOCount = 5
	f.PhoneRTORate = 1
	f.AddressDistinctPhones = 9
	f.IsCOD = true
	f.IsFirstOrder = true
	f.IsHighValue = true
	f.IsHighDiscount = true
	f.DiscountPercent = 60
	f.CityRiskTier = 4
	f.IsNightOrder = true
	res := NewEngine().Evaluate(f)

	assert.Equal(t, 100.0, res.Score)
}

func TestEvaluate_FirstOrderBlocksCleanHistory(t *testing.T) {
	f := cleanFeatures()
	f.IsCOD = true
	f.IsFirstOrder = true
	res := NewEngine().Evaluate(f)

	assert.Equal(t, 10.0, res.Score)
	assert.Len(t, res.Hits, 1)
	assert.Equal(t, "cod_first_order", res.Hits[0].Rule)
}
