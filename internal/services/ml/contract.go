package ml

import "time"

// The model consumes a fixed, versioned feature vector. Names below
// are the externally published contract; the pipeline's internal names
// are translated, and anything the pipeline cannot compute is sent with
// an explicit default rather than omitted. The model refuses partial
// vectors, so every contract feature must be present.
const contractVersion = "v3"

// backendToML renames internal feature names to their contract names.
// Features absent from this map share a name with the contract.
var backendToML = map[string]string{
	"phone_valid":         "phone_verified",
	"phone_order_count":   "customer_order_count",
	"phone_rto_rate":      "customer_rto_rate",
	"phone_age_days":      "customer_account_age_days",
	"items_count":         "order_item_count",
	"is_high_value":       "is_high_value_order",
	"address_order_count": "city_order_volume",
}

// contractDefaults fills contract features the pipeline cannot compute.
// Values are regional averages so unknown inputs still score sensibly,
// not zeros that the model would read as strong signals.
var contractDefaults = map[string]float64{
	"customer_cancel_rate":      0,
	"customer_avg_order_value":  0,
	"customer_distinct_phones":  1,
	"customer_address_changes":  0,
	"city_rto_rate":             0.28,
	"city_avg_delivery_days":    3.5,
	"product_rto_rate":          0.25,
	"product_category_rto_rate": 0.25,
	"product_price_vs_avg":      1,
	"amount_zscore":             0,
	"email_verified":            0,
	"address_quality_score":     0.5,
	"shipping_distance_km":      200,
	"same_city_shipping":        0,
	"is_prepaid":                0,
	"orders_last_1h":            0,
	"orders_last_24h":           0,
	"orders_last_7d":            0,
	"customer_lifetime_value":   0,
	"amount_vs_customer_avg":    1,
	"is_new_account":            0,
	"new_account_high_value":    0,
	"new_account_cod":           0,
	"is_eid_period":             0,
	"is_ramadan":                0,
	"is_sale_period":            0,
	"avg_days_between_orders":   999,
	"cod_first_order":           0,
	"high_value_cod_first":      0,
	"phone_risk_score":          0,
	"is_repeat_customer":        0,
	"customer_distinct_cities":  0,
	"city_order_volume":         400,
}

// contractFeatures is the complete v3 vector.
var contractFeatures = []string{
	"amount_vs_customer_avg",
	"amount_zscore",
	"address_quality_score",
	"avg_days_between_orders",
	"city_avg_delivery_days",
	"city_order_volume",
	"city_rto_rate",
	"cod_first_order",
	"customer_account_age_days",
	"customer_address_changes",
	"customer_avg_order_value",
	"customer_cancel_rate",
	"customer_distinct_cities",
	"customer_distinct_phones",
	"customer_lifetime_value",
	"customer_order_count",
	"customer_rto_rate",
	"days_since_last_order",
	"discount_percentage",
	"email_verified",
	"high_value_cod_first",
	"is_cod",
	"is_eid_period",
	"is_first_order",
	"is_high_discount",
	"is_high_value_order",
	"is_new_account",
	"is_night_order",
	"is_prepaid",
	"is_ramadan",
	"is_repeat_customer",
	"is_sale_period",
	"is_weekend",
	"new_account_cod",
	"new_account_high_value",
	"order_amount",
	"order_hour",
	"order_item_count",
	"orders_last_1h",
	"orders_last_24h",
	"orders_last_7d",
	"phone_risk_score",
	"phone_verified",
	"product_category_rto_rate",
	"product_price_vs_avg",
	"product_rto_rate",
	"same_city_shipping",
	"shipping_distance_km",
}

const newAccountAgeDays = 30

// mapFeatures translates the pipeline's vector into the full contract
// vector: rename, derive the interaction and seasonal features, then
// default everything still missing. Internal-only features never leave
// the process; the output carries exactly the contract names.
func mapFeatures(backend map[string]float64, placedAt time.Time) map[string]float64 {
	renamed := make(map[string]float64, len(backend))
	for name, value := range backend {
		if contractName, ok := backendToML[name]; ok {
			name = contractName
		}
		// The phone aggregate and the customer history can rename onto
		// the same contract feature. The phone aggregate spans tenants,
		// so the larger value wins.
		if prev, ok := renamed[name]; ok && prev > value {
			value = prev
		}
		renamed[name] = value
	}

	deriveInteractions(renamed)
	deriveSeasonal(renamed, placedAt)

	out := make(map[string]float64, len(contractFeatures))
	for _, name := range contractFeatures {
		if v, ok := renamed[name]; ok {
			out[name] = v
		} else {
			out[name] = contractDefaults[name]
		}
	}
	return out
}

// deriveSeasonal sets the calendar flags the model was trained with.
// Eid and Ramadan drift across the Gregorian year; the month windows
// below match the training data's 2024-2026 horizon.
func deriveSeasonal(f map[string]float64, at time.Time) {
	if at.IsZero() {
		return
	}
	month := at.Month()
	day := at.Day()

	f["is_eid_period"] = oneIf(month == time.April || month == time.June || month == time.July)
	f["is_ramadan"] = oneIf(month == time.March || month == time.April)
	f["is_sale_period"] = oneIf(
		(month == time.November && day >= 8 && day <= 14) ||
			(month == time.December && day >= 9 && day <= 15) ||
			(month == time.November && day >= 24 && day <= 30))
}

func deriveInteractions(f map[string]float64) {
	isCOD := f["is_cod"] > 0
	isFirst := f["is_first_order"] > 0
	isHighValue := f["is_high_value_order"] > 0
	newAccount := f["customer_account_age_days"] < newAccountAgeDays

	f["is_prepaid"] = oneIf(!isCOD)
	f["is_repeat_customer"] = oneIf(f["customer_order_count"] >= 2)
	if isCOD && isFirst {
		f["cod_first_order"] = 1
	}
	if isCOD && isFirst && isHighValue {
		f["high_value_cod_first"] = 1
	}
	f["is_new_account"] = oneIf(newAccount)
	if newAccount && isHighValue {
		f["new_account_high_value"] = 1
	}
	if newAccount && isCOD {
		f["new_account_cod"] = 1
	}
	f["phone_risk_score"] = f["customer_rto_rate"] * 100
}

func oneIf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
