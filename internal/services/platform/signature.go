package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// computeHMAC returns the HMAC-SHA256 digest of body under secret.
func computeHMAC(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// verifyBase64 checks a base64-encoded HMAC-SHA256 signature. Undecodable
// or wrong-length signatures fail fast; the digest comparison itself is
// constant-time.
func verifyBase64(signature string, body []byte, secret string) bool {
	given, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(given) != sha256.Size {
		return false
	}
	return hmac.Equal(given, computeHMAC(body, secret))
}

// verifyHex checks a hex-encoded HMAC-SHA256 signature with the same
// fail-fast and constant-time properties as verifyBase64.
func verifyHex(signature string, body []byte, secret string) bool {
	given, err := hex.DecodeString(signature)
	if err != nil || len(given) != sha256.Size {
		return false
	}
	return hmac.Equal(given, computeHMAC(body, secret))
}
