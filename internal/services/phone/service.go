// Package phone canonicalizes raw phone strings into E.164 form and
// derives the operating carrier. Normalization is deterministic and never
// fails; unusable input yields IsValid=false.
package phone

import (
	"strings"

	"rtoshield/internal/config"
)

const operatorPrefixWidth = 4

// Normalizer canonicalizes phone numbers against one region's numbering
// plan.
type Normalizer struct {
	table *config.CarrierTable
}

// NewNormalizer creates a normalizer for the given carrier table.
func NewNormalizer(table *config.CarrierTable) *Normalizer {
	if table == nil {
		panic("carrier table is required")
	}
	return &Normalizer{table: table}
}

// Normalize canonicalizes a raw phone string. Accepted shapes for the
// default plan (country code 92, local length 11):
//
//	+923001234567 / 923001234567  bare international
//	03001234567                   local trunk-prefixed
//	3001234567                    bare subscriber number
//
// Localized digit glyphs are transliterated before parsing. Formatting
// characters (spaces, dashes, parentheses) are stripped.
func (n *Normalizer) Normalize(raw string) Normalized {
	digits, hadPlus := extractDigits(raw)
	subscriber := n.subscriberNumber(digits, hadPlus)
	if subscriber == "" {
		return Normalized{IsValid: false}
	}

	local := "0" + subscriber
	result := Normalized{
		E164:     "+" + n.table.CountryCode + subscriber,
		Local:    local,
		IsValid:  len(local) == n.table.LocalLength,
		IsMobile: strings.HasPrefix(subscriber, n.table.MobilePrefix),
	}
	if result.IsValid && len(local) >= operatorPrefixWidth {
		result.Carrier = n.table.Resolve(local[:operatorPrefixWidth])
	}
	return result
}

// subscriberNumber strips the international or trunk prefix and returns
// the bare subscriber number, or "" when no accepted shape matches.
func (n *Normalizer) subscriberNumber(digits string, hadPlus bool) string {
	cc := n.table.CountryCode
	subscriberLen := n.table.LocalLength - 1

	switch {
	case strings.HasPrefix(digits, cc) && len(digits) == len(cc)+subscriberLen:
		return digits[len(cc):]
	case !hadPlus && strings.HasPrefix(digits, "0") && len(digits) == n.table.LocalLength:
		return digits[1:]
	case !hadPlus && strings.HasPrefix(digits, n.table.MobilePrefix) && len(digits) == subscriberLen:
		return digits
	default:
		return ""
	}
}

// extractDigits transliterates localized digit glyphs to ASCII and strips
// every non-digit character. The leading "+" is reported separately as a
// format hint.
func extractDigits(raw string) (digits string, hadPlus bool) {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			hadPlus = true
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '٠' && r <= '٩': // Arabic-Indic digits
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹': // Extended Arabic-Indic digits
			b.WriteRune('0' + (r - '۰'))
		}
	}
	return b.String(), hadPlus
}
