package platform

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexFloat decodes a JSON number that platforms sometimes quote
// ("4500.00") and sometimes do not (4500).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexString decodes a JSON value that may arrive as a string or a bare
// number, as platform order ids do.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) >= 2 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

// normalizePaymentMethod maps a platform's payment wording onto the two
// canonical methods.
func normalizePaymentMethod(raw string) string {
	lowered := strings.ToLower(raw)
	if strings.Contains(lowered, "cod") || strings.Contains(lowered, "cash") {
		return "cod"
	}
	return "prepaid"
}

// joinName composes a customer name from split first/last fields.
func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
