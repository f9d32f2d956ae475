package delivery

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSMTPMailerValidation(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{From: "exports@cleanidoc.test"})
	assert.Error(t, err)

	_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.test"})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.test", From: "exports@cleanidoc.test"})
	require.NoError(t, err)
	assert.Equal(t, 587, m.cfg.Port)
}

// TestSMTPMessage tests the rendered MIME message
func TestSMTPMessage(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.test", From: "exports@cleanidoc.test"})
	require.NoError(t, err)

	msg := buildEmail(testBundle(), []string{"qa@acme.test"})
	out, err := m.newMsg(msg)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = out.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.String()
	assert.Contains(t, raw, "qa@acme.test")
	assert.Contains(t, raw, "exports@cleanidoc.test")
	assert.Contains(t, raw, "CleaniDoc daily export 2026-03-01")
	assert.Contains(t, raw, "cleandoc_export_2026-03-01.zip")
	assert.Contains(t, raw, "cleandoc_daily_report_2026-03-01.pdf")
	assert.Contains(t, raw, "multipart/mixed")
}

func TestSMTPMessageInvalidRecipient(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.test", From: "exports@cleanidoc.test"})
	require.NoError(t, err)

	_, err = m.newMsg(&Message{To: []string{"not an address"}, Subject: "x"})
	assert.Error(t, err)
}
