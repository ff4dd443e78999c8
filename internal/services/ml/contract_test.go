package ml

import (
	"testing"
	"time"

	"rtoshield/internal/services/features"

	"github.com/stretchr/testify/assert"
)

func TestMapFeatures_RenamesAndCompletes(t *testing.T) {
	f := &features.OrderFeatures{
		OrderAmount:     3000,
		ItemCount:       2,
		IsCOD:           true,
		PhoneValid:      true,
		PhoneOrderCount: 6,
		PhoneRTORate:    0.5,
		PhoneAgeDays:    120,
		IsFirstOrder:    false,
	}
	out := mapFeatures(f.ToMap(), time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC))

	assert.Len(t, out, len(contractFeatures))
	for _, name := range contractFeatures {
		_, ok := out[name]
		assert.True(t, ok, "contract feature %s must always be present", name)
	}

	assert.Equal(t, 1.0, out["phone_verified"])
	assert.Equal(t, 6.0, out["customer_order_count"])
	assert.Equal(t, 0.5, out["customer_rto_rate"])
	assert.Equal(t, 120.0, out["customer_account_age_days"])
	assert.Equal(t, 2.0, out["order_item_count"])

	// Internal-only names must not leak onto the wire.
	_, leaked := out["phone_blacklisted"]
	assert.False(t, leaked)
	_, leaked = out["city_risk_tier"]
	assert.False(t, leaked)
}

func TestMapFeatures_Defaults(t *testing.T) {
	out := mapFeatures(map[string]float64{"order_amount": 1000}, time.Time{})

	assert.Equal(t, 0.28, out["city_rto_rate"])
	assert.Equal(t, 1.0, out["amount_vs_customer_avg"])
	assert.Equal(t, 999.0, out["avg_days_between_orders"])
	assert.Equal(t, 0.5, out["address_quality_score"])
}

func TestMapFeatures_Interactions(t *testing.T) {
	f := &features.OrderFeatures{
		OrderAmount:  9000,
		IsCOD:        true,
		IsHighValue:  true,
		IsFirstOrder: true,
		PhoneRTORate: 0.4,
	}
	out := mapFeatures(f.ToMap(), time.Time{})

	assert.Equal(t, 1.0, out["cod_first_order"])
	assert.Equal(t, 1.0, out["high_value_cod_first"])
	assert.Equal(t, 1.0, out["is_new_account"], "zero account age counts as new")
	assert.Equal(t, 1.0, out["new_account_cod"])
	assert.Equal(t, 1.0, out["new_account_high_value"])
	assert.Equal(t, 0.0, out["is_prepaid"])
	assert.InDelta(t, 40.0, out["phone_risk_score"], 0.001)
}

func TestMapFeatures_SeasonalFlags(t *testing.T) {
	eid := mapFeatures(map[string]float64{}, time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1.0, eid["is_eid_period"])
	assert.Equal(t, 0.0, eid["is_ramadan"])

	ramadan := mapFeatures(map[string]float64{}, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1.0, ramadan["is_ramadan"])

	sale := mapFeatures(map[string]float64{}, time.Date(2026, 11, 11, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1.0, sale["is_sale_period"])

	plain := mapFeatures(map[string]float64{}, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 0.0, plain["is_eid_period"])
	assert.Equal(t, 0.0, plain["is_sale_period"])
}
