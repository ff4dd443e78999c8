package platform

import (
	"encoding/json"
	"fmt"
	"time"
)

// CustomAdapter handles the generic ingestion path for stores without a
// supported platform. The custom path carries no signature; the tenant
// API key is the only authentication.
type CustomAdapter struct{}

// NewCustomAdapter creates the generic adapter.
func NewCustomAdapter() *CustomAdapter {
	return &CustomAdapter{}
}

func (a *CustomAdapter) Platform() string        { return "custom" }
func (a *CustomAdapter) SignatureHeader() string { return "" }

func (a *CustomAdapter) ValidateSignature(header HeaderFunc, rawBody []byte, secret string) bool {
	return true
}

type customPayload struct {
	OrderID     flexString `json:"order_id"`
	OrderNumber flexString `json:"order_number"`
	Customer    struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
		IP    string `json:"ip"`
	} `json:"customer"`
	Shipping struct {
		Address string `json:"address"`
		City    string `json:"city"`
	} `json:"shipping"`
	Amount          flexFloat `json:"amount"`
	PaymentMethod   string    `json:"payment_method"`
	ItemCount       int       `json:"item_count"`
	DiscountPercent flexFloat `json:"discount_percent"`
	PlacedAt        time.Time `json:"placed_at"`
}

func (a *CustomAdapter) Normalize(rawPayload []byte) (*NormalizedOrder, error) {
	var p customPayload
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return nil, fmt.Errorf("%w: custom order: %v", ErrMalformedPayload, err)
	}
	if p.OrderID == "" {
		return nil, fmt.Errorf("%w: custom order payload carries no order_id", ErrMissingOrderID)
	}

	order := &NormalizedOrder{
		ExternalID:      string(p.OrderID),
		OrderNumber:     string(p.OrderNumber),
		CustomerName:    p.Customer.Name,
		CustomerEmail:   p.Customer.Email,
		CustomerPhone:   p.Customer.Phone,
		CustomerIP:      p.Customer.IP,
		ShippingAddress: p.Shipping.Address,
		ShippingCity:    p.Shipping.City,
		PaymentMethod:   normalizePaymentMethod(p.PaymentMethod),
		Amount:          float64(p.Amount),
		ItemCount:       p.ItemCount,
		DiscountPercent: float64(p.DiscountPercent),
		PlacedAt:        p.PlacedAt,
	}
	if order.ItemCount == 0 {
		order.ItemCount = 1
	}
	return order, nil
}
