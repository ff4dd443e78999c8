package phone

// Normalized is the canonicalized view of one raw phone string. Carrier
// is empty when the operator prefix is not allocated in the carrier table.
type Normalized struct {
	E164     string `json:"e164"`
	Local    string `json:"local"`
	Carrier  string `json:"carrier,omitempty"`
	IsValid  bool   `json:"is_valid"`
	IsMobile bool   `json:"is_mobile"`
}
