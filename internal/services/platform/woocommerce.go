package platform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WooCommerceAdapter handles WooCommerce order webhooks. WooCommerce
// signs the raw body with HMAC-SHA256 and sends the digest base64-encoded
// in X-WC-Webhook-Signature.
type WooCommerceAdapter struct{}

// NewWooCommerceAdapter creates the WooCommerce adapter.
func NewWooCommerceAdapter() *WooCommerceAdapter {
	return &WooCommerceAdapter{}
}

func (a *WooCommerceAdapter) Platform() string        { return "woocommerce" }
func (a *WooCommerceAdapter) SignatureHeader() string { return "X-WC-Webhook-Signature" }

func (a *WooCommerceAdapter) ValidateSignature(header HeaderFunc, rawBody []byte, secret string) bool {
	return verifyBase64(header(a.SignatureHeader()), rawBody, secret)
}

type wooParty struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
}

type wooPayload struct {
	ID            flexString `json:"id"`
	Number        flexString `json:"number"`
	Total         flexFloat  `json:"total"`
	DiscountTotal flexFloat  `json:"discount_total"`
	PaymentMethod string     `json:"payment_method"`
	CustomerIP    string     `json:"customer_ip_address"`
	DateCreated   string     `json:"date_created_gmt"`
	Billing       *wooParty  `json:"billing"`
	Shipping      *wooParty  `json:"shipping"`
	LineItems     []struct {
		Quantity int `json:"quantity"`
	} `json:"line_items"`
}

func (a *WooCommerceAdapter) Normalize(rawPayload []byte) (*NormalizedOrder, error) {
	var p wooPayload
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return nil, fmt.Errorf("%w: woocommerce order: %v", ErrMalformedPayload, err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("%w: woocommerce order payload carries no id", ErrMissingOrderID)
	}

	order := &NormalizedOrder{
		ExternalID:    string(p.ID),
		OrderNumber:   string(p.Number),
		CustomerIP:    p.CustomerIP,
		PaymentMethod: normalizePaymentMethod(p.PaymentMethod),
		Amount:        float64(p.Total),
	}

	// WooCommerce sends GMT timestamps without a zone designator.
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, p.DateCreated); err == nil {
			order.PlacedAt = t.UTC()
			break
		}
	}

	if p.Billing != nil {
		order.CustomerName = joinName(p.Billing.FirstName, p.Billing.LastName)
		order.CustomerEmail = p.Billing.Email
		order.CustomerPhone = p.Billing.Phone
	}

	// Shipping fields win over billing when both are present; WooCommerce
	// stores the delivery destination there.
	shipTo := p.Shipping
	if shipTo == nil || (shipTo.Address1 == "" && shipTo.City == "") {
		shipTo = p.Billing
	}
	if shipTo != nil {
		order.ShippingAddress = strings.TrimSpace(shipTo.Address1 + " " + shipTo.Address2)
		order.ShippingCity = shipTo.City
		if order.CustomerName == "" {
			order.CustomerName = joinName(shipTo.FirstName, shipTo.LastName)
		}
		if order.CustomerPhone == "" {
			order.CustomerPhone = shipTo.Phone
		}
	}

	for _, item := range p.LineItems {
		order.ItemCount += item.Quantity
	}
	if order.ItemCount == 0 {
		order.ItemCount = 1
	}
	if order.Amount > 0 && p.DiscountTotal > 0 {
		order.DiscountPercent = float64(p.DiscountTotal) / (order.Amount + float64(p.DiscountTotal)) * 100
	}
	return order, nil
}
