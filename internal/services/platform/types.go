package platform

import "time"

// HeaderFunc returns the value of a request header by name. Adapters use
// it so each can read its own signature and timestamp header names.
type HeaderFunc func(name string) string

// NormalizedOrder is the canonical order shape every adapter produces.
type NormalizedOrder struct {
	ExternalID      string
	OrderNumber     string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerIP      string
	ShippingAddress string
	ShippingCity    string
	PaymentMethod   string
	Amount          float64
	ItemCount       int
	DiscountPercent float64
	PlacedAt        time.Time
}

// Adapter verifies inbound webhook signatures and normalizes raw
// payloads for one source platform. Implementations are pure transforms
// with no side effects.
type Adapter interface {
	Platform() string
	// SignatureHeader names the header carrying the webhook signature.
	// Empty means the platform sends no signature (API key only).
	SignatureHeader() string
	ValidateSignature(header HeaderFunc, rawBody []byte, secret string) bool
	Normalize(rawPayload []byte) (*NormalizedOrder, error)
}
