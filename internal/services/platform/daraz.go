package platform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DarazAdapter handles Daraz seller-center order pushes. Daraz signs the
// raw body with HMAC-SHA256 and sends the digest hex-encoded in
// X-Daraz-Signature.
type DarazAdapter struct{}

// NewDarazAdapter creates the Daraz adapter.
func NewDarazAdapter() *DarazAdapter {
	return &DarazAdapter{}
}

func (a *DarazAdapter) Platform() string        { return "daraz" }
func (a *DarazAdapter) SignatureHeader() string { return "X-Daraz-Signature" }

func (a *DarazAdapter) ValidateSignature(header HeaderFunc, rawBody []byte, secret string) bool {
	return verifyHex(header(a.SignatureHeader()), rawBody, secret)
}

type darazPayload struct {
	OrderID         flexString `json:"order_id"`
	OrderNumber     flexString `json:"order_number"`
	CustomerName    string     `json:"customer_first_name"`
	CustomerLast    string     `json:"customer_last_name"`
	Price           flexFloat  `json:"price"`
	VoucherAmount   flexFloat  `json:"voucher"`
	PaymentMethod   string     `json:"payment_method"`
	ItemsCount      int        `json:"items_count"`
	CreatedAt       string     `json:"created_at"`
	AddressShipping *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Address1  string `json:"address1"`
		City      string `json:"city"`
	} `json:"address_shipping"`
}

func (a *DarazAdapter) Normalize(rawPayload []byte) (*NormalizedOrder, error) {
	var p darazPayload
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return nil, fmt.Errorf("%w: daraz order: %v", ErrMalformedPayload, err)
	}
	if p.OrderID == "" {
		return nil, fmt.Errorf("%w: daraz order payload carries no order_id", ErrMissingOrderID)
	}

	order := &NormalizedOrder{
		ExternalID:    string(p.OrderID),
		OrderNumber:   string(p.OrderNumber),
		CustomerName:  joinName(p.CustomerName, p.CustomerLast),
		PaymentMethod: normalizePaymentMethod(p.PaymentMethod),
		Amount:        float64(p.Price),
		ItemCount:     p.ItemsCount,
	}
	if order.ItemCount == 0 {
		order.ItemCount = 1
	}

	if p.AddressShipping != nil {
		order.CustomerPhone = p.AddressShipping.Phone
		order.ShippingAddress = strings.TrimSpace(p.AddressShipping.Address1)
		order.ShippingCity = p.AddressShipping.City
		if order.CustomerName == "" {
			order.CustomerName = joinName(p.AddressShipping.FirstName, p.AddressShipping.LastName)
		}
	}

	if order.Amount > 0 && p.VoucherAmount > 0 {
		order.DiscountPercent = float64(p.VoucherAmount) / (order.Amount + float64(p.VoucherAmount)) * 100
	}

	// Daraz timestamps arrive as "2006-01-02 15:04:05 -0700".
	for _, layout := range []string{"2006-01-02 15:04:05 -0700", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, p.CreatedAt); err == nil {
			order.PlacedAt = t
			break
		}
	}
	return order, nil
}
