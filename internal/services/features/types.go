package features

// OrderFeatures is the fixed feature vector one scoring call runs on.
// Every field has a defined zero-history default; nothing is ever null.
type OrderFeatures struct {
	// Static order features, always computable from the payload.
	OrderAmount     float64 `json:"order_amount"`
	ItemCount       float64 `json:"items_count"`
	IsCOD           bool    `json:"is_cod"`
	IsHighValue     bool    `json:"is_high_value"`
	OrderHour       float64 `json:"order_hour"`
	IsWeekend       bool    `json:"is_weekend"`
	IsNightOrder    bool    `json:"is_night_order"`
	DiscountPercent float64 `json:"discount_percentage"`
	IsHighDiscount  bool    `json:"is_high_discount"`

	// Phone aggregate.
	PhoneValid         bool    `json:"phone_valid"`
	PhoneIsMobile      bool    `json:"phone_is_mobile"`
	PhoneOrderCount    float64 `json:"phone_order_count"`
	PhoneRTOCount      float64 `json:"phone_rto_count"`
	PhoneRTORate       float64 `json:"phone_rto_rate"`
	PhoneAgeDays       float64 `json:"phone_age_days"`
	DaysSinceLastOrder float64 `json:"days_since_last_order"`
	IsFirstOrder       bool    `json:"is_first_order"`

	// Address aggregate.
	AddressOrderCount     float64 `json:"address_order_count"`
	AddressRTORate        float64 `json:"address_rto_rate"`
	AddressDistinctPhones float64 `json:"address_distinct_phones"`

	// City aggregate.
	CityOrderCount float64 `json:"city_order_count"`
	CityRTORate    float64 `json:"city_rto_rate"`
	CityRiskTier   float64 `json:"city_risk_tier"`

	// Customer history (phone OR email match).
	CustomerOrderCount    float64 `json:"customer_order_count"`
	CustomerRTORate       float64 `json:"customer_rto_rate"`
	CustomerAvgOrderValue float64 `json:"customer_avg_order_value"`
	AmountVsCustomerAvg   float64 `json:"amount_vs_customer_avg"`

	// Blacklist membership.
	PhoneBlacklisted bool `json:"phone_blacklisted"`
	EmailBlacklisted bool `json:"email_blacklisted"`
	IPBlacklisted    bool `json:"ip_blacklisted"`
}

// Blacklisted reports whether any blacklist flag is set.
func (f *OrderFeatures) Blacklisted() bool {
	return f.PhoneBlacklisted || f.EmailBlacklisted || f.IPBlacklisted
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ToMap flattens the vector for serialization and for the ML contract
// mapping. Booleans become 0/1.
func (f *OrderFeatures) ToMap() map[string]float64 {
	return map[string]float64{
		"order_amount":             f.OrderAmount,
		"items_count":              f.ItemCount,
		"is_cod":                   boolToFloat(f.IsCOD),
		"is_high_value":            boolToFloat(f.IsHighValue),
		"order_hour":               f.OrderHour,
		"is_weekend":               boolToFloat(f.IsWeekend),
		"is_night_order":           boolToFloat(f.IsNightOrder),
		"discount_percentage":      f.DiscountPercent,
		"is_high_discount":         boolToFloat(f.IsHighDiscount),
		"phone_valid":              boolToFloat(f.PhoneValid),
		"phone_is_mobile":          boolToFloat(f.PhoneIsMobile),
		"phone_order_count":        f.PhoneOrderCount,
		"phone_rto_count":          f.PhoneRTOCount,
		"phone_rto_rate":           f.PhoneRTORate,
		"phone_age_days":           f.PhoneAgeDays,
		"days_since_last_order":    f.DaysSinceLastOrder,
		"is_first_order":           boolToFloat(f.IsFirstOrder),
		"address_order_count":      f.AddressOrderCount,
		"address_rto_rate":         f.AddressRTORate,
		"address_distinct_phones":  f.AddressDistinctPhones,
		"city_order_count":         f.CityOrderCount,
		"city_rto_rate":            f.CityRTORate,
		"city_risk_tier":           f.CityRiskTier,
		"customer_order_count":     f.CustomerOrderCount,
		"customer_rto_rate":        f.CustomerRTORate,
		"customer_avg_order_value": f.CustomerAvgOrderValue,
		"amount_vs_customer_avg":   f.AmountVsCustomerAvg,
		"phone_blacklisted":        boolToFloat(f.PhoneBlacklisted),
		"email_blacklisted":        boolToFloat(f.EmailBlacklisted),
		"ip_blacklisted":           boolToFloat(f.IPBlacklisted),
	}
}
