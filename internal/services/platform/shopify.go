package platform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ShopifyAdapter handles Shopify order webhooks. Shopify signs the raw
// body with HMAC-SHA256 and sends the digest base64-encoded in
// X-Shopify-Hmac-Sha256.
type ShopifyAdapter struct{}

// NewShopifyAdapter creates the Shopify adapter.
func NewShopifyAdapter() *ShopifyAdapter {
	return &ShopifyAdapter{}
}

func (a *ShopifyAdapter) Platform() string        { return "shopify" }
func (a *ShopifyAdapter) SignatureHeader() string { return "X-Shopify-Hmac-Sha256" }

func (a *ShopifyAdapter) ValidateSignature(header HeaderFunc, rawBody []byte, secret string) bool {
	return verifyBase64(header(a.SignatureHeader()), rawBody, secret)
}

type shopifyAddress struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Phone    string `json:"phone"`
}

type shopifyPayload struct {
	ID                  flexString      `json:"id"`
	OrderNumber         flexString      `json:"order_number"`
	Email               string          `json:"email"`
	Phone               string          `json:"phone"`
	TotalPrice          flexFloat       `json:"total_price"`
	TotalDiscounts      flexFloat       `json:"total_discounts"`
	BrowserIP           string          `json:"browser_ip"`
	CreatedAt           time.Time       `json:"created_at"`
	PaymentGatewayNames []string        `json:"payment_gateway_names"`
	ShippingAddress     *shopifyAddress `json:"shipping_address"`
	Customer            *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"customer"`
	LineItems []struct {
		Quantity int `json:"quantity"`
	} `json:"line_items"`
}

func (a *ShopifyAdapter) Normalize(rawPayload []byte) (*NormalizedOrder, error) {
	var p shopifyPayload
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return nil, fmt.Errorf("%w: shopify order: %v", ErrMalformedPayload, err)
	}
	// Some Shopify webhook topics omit the numeric id; order_number
	// still identifies the order.
	externalID := string(p.ID)
	if externalID == "" {
		externalID = string(p.OrderNumber)
	}
	if externalID == "" {
		return nil, fmt.Errorf("%w: shopify order payload carries neither id nor order_number", ErrMissingOrderID)
	}

	order := &NormalizedOrder{
		ExternalID:    externalID,
		OrderNumber:   string(p.OrderNumber),
		CustomerEmail: p.Email,
		CustomerPhone: p.Phone,
		CustomerIP:    p.BrowserIP,
		PaymentMethod: normalizePaymentMethod(strings.Join(p.PaymentGatewayNames, " ")),
		Amount:        float64(p.TotalPrice),
		PlacedAt:      p.CreatedAt,
	}

	if p.Customer != nil {
		order.CustomerName = joinName(p.Customer.FirstName, p.Customer.LastName)
		if order.CustomerEmail == "" {
			order.CustomerEmail = p.Customer.Email
		}
		if order.CustomerPhone == "" {
			order.CustomerPhone = p.Customer.Phone
		}
	}
	if p.ShippingAddress != nil {
		if order.CustomerName == "" {
			order.CustomerName = p.ShippingAddress.Name
		}
		if order.CustomerPhone == "" {
			order.CustomerPhone = p.ShippingAddress.Phone
		}
		order.ShippingAddress = strings.TrimSpace(p.ShippingAddress.Address1 + " " + p.ShippingAddress.Address2)
		order.ShippingCity = p.ShippingAddress.City
	}

	for _, item := range p.LineItems {
		order.ItemCount += item.Quantity
	}
	if order.ItemCount == 0 {
		order.ItemCount = 1
	}
	if order.Amount > 0 && p.TotalDiscounts > 0 {
		order.DiscountPercent = float64(p.TotalDiscounts) / (order.Amount + float64(p.TotalDiscounts)) * 100
	}
	return order, nil
}
