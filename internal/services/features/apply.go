package features

import (
	"encoding/json"
	"reflect"
	"time"

	"rtoshield/internal/models"
	"rtoshield/internal/repositories"
)

func (s *service) applyPhone(f *OrderFeatures, rec *models.PhoneRecord, at time.Time) {
	// Validity and mobile-ness come from the current order's own
	// normalization in staticFeatures; the aggregate record only
	// contributes history counters.
	if rec == nil {
		// Zero history: the phone has never been seen. First order by
		// definition unless the customer history says otherwise.
		f.IsFirstOrder = true
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	f.PhoneOrderCount = float64(rec.TotalOrders)
	f.PhoneRTOCount = float64(rec.TotalRTO)
	f.PhoneRTORate = rec.RTORate
	if !rec.FirstSeenAt.IsZero() {
		f.PhoneAgeDays = at.Sub(rec.FirstSeenAt).Hours() / 24
	}
	if !rec.LastOrderAt.IsZero() {
		f.DaysSinceLastOrder = at.Sub(rec.LastOrderAt).Hours() / 24
	}
	f.IsFirstOrder = rec.TotalOrders == 0
}

func (s *service) applyAddress(f *OrderFeatures, stat *models.AddressStat) {
	if stat == nil {
		return
	}
	f.AddressOrderCount = float64(stat.TotalOrders)
	f.AddressRTORate = stat.RTORate
	f.AddressDistinctPhones = float64(stat.DistinctPhones)
}

func (s *service) applyCity(f *OrderFeatures, stat *models.CityStat, city string) {
	f.CityRiskTier = float64(s.cities.TierFor(city))
	if stat == nil {
		return
	}
	f.CityOrderCount = float64(stat.TotalOrders)
	f.CityRTORate = stat.RTORate
}

func (s *service) applyCustomer(f *OrderFeatures, history *repositories.CustomerHistory, amount float64) {
	if history == nil || history.OrderCount == 0 {
		return
	}
	f.CustomerOrderCount = float64(history.OrderCount)
	f.CustomerRTORate = history.RTORate()
	f.CustomerAvgOrderValue = history.AvgOrderValue
	if history.AvgOrderValue > 0 {
		f.AmountVsCustomerAvg = amount / history.AvgOrderValue
	}
	f.IsFirstOrder = false
}

// isNilPointer reports whether value is a typed nil hiding in an
// interface, which a plain nil check misses.
func isNilPointer(value interface{}) bool {
	v := reflect.ValueOf(value)
	return v.Kind() == reflect.Ptr && v.IsNil()
}

// copyValue moves a freshly fetched value into the caller's destination
// through the same JSON encoding the cache uses.
func copyValue(value, dest interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
