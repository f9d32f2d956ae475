package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix precedes the hex digest in signature headers
const SignaturePrefix = "sha256="

// Sign returns the hex HMAC-SHA256 of payload
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader returns the value of a webhook signature header
func SignatureHeader(secret string, payload []byte) string {
	return SignaturePrefix + Sign(secret, payload)
}

// VerifySignature checks a "sha256=<hex>" header against payload in
// constant time
func VerifySignature(secret string, payload []byte, header string) bool {
	if !strings.HasPrefix(header, SignaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, SignaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
