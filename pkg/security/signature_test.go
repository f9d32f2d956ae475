package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureHeader(t *testing.T) {
	payload := []byte(`{"event":"daily_export_completed"}`)
	header := SignatureHeader("s3cret", payload)

	assert.True(t, strings.HasPrefix(header, "sha256="))

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write(payload)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), header)
}

// TestVerifySignature tests webhook signature verification
func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"export_id":"e1"}`)
	valid := SignatureHeader("s3cret", payload)

	tests := []struct {
		name    string
		secret  string
		payload []byte
		header  string
		want    bool
	}{
		{name: "valid", secret: "s3cret", payload: payload, header: valid, want: true},
		{name: "wrong secret", secret: "other", payload: payload, header: valid},
		{name: "modified payload", secret: "s3cret", payload: []byte(`{"export_id":"e2"}`), header: valid},
		{name: "missing prefix", secret: "s3cret", payload: payload, header: strings.TrimPrefix(valid, "sha256=")},
		{name: "not hex", secret: "s3cret", payload: payload, header: "sha256=zz"},
		{name: "empty", secret: "s3cret", payload: payload, header: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(tt.secret, tt.payload, tt.header))
		})
	}
}
