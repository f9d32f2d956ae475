package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/security"
	"github.com/cleanidoc/cleandoc/pkg/types"
)

const (
	// WebhookEvent is sent in the X-CleaniDoc-Event header
	WebhookEvent = "daily_export_completed"

	HeaderSignature = "X-CleaniDoc-Signature"
	HeaderEvent     = "X-CleaniDoc-Event"
)

// WebhookPayload is the JSON body posted to a tenant's webhook
type WebhookPayload struct {
	Event       string            `json:"event"`
	ExportID    string            `json:"export_id"`
	TenantID    string            `json:"tenant_id"`
	ReportDate  string            `json:"report_date"`
	GeneratedAt time.Time         `json:"generated_at"`
	Stats       types.ExportStats `json:"stats"`
	Files       []File            `json:"files"`
	ExpiresAt   *time.Time        `json:"links_expire_at,omitempty"`
}

// NewWebhookPayload encodes the payload of b
func NewWebhookPayload(b *Bundle) ([]byte, error) {
	p := WebhookPayload{
		Event:       WebhookEvent,
		ExportID:    b.ExportID,
		TenantID:    b.TenantID,
		ReportDate:  b.ReportDate,
		GeneratedAt: b.GeneratedAt.UTC(),
		Stats:       b.Stats,
		Files:       b.Files,
	}
	if !b.LinksExpireAt.IsZero() {
		t := b.LinksExpireAt.UTC()
		p.ExpiresAt = &t
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	return data, nil
}

// WebhookClient posts signed payloads
type WebhookClient struct {
	client *http.Client
}

// NewWebhookClient wraps client; nil uses a client without redirects
func NewWebhookClient(client *http.Client) *WebhookClient {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &WebhookClient{client: client}
}

// Send posts payload signed with secret and returns the response status.
// Any non-2xx status is an error.
func (w *WebhookClient) Send(ctx context.Context, url, secret string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("invalid webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CleaniDoc-Webhook/1.0")
	req.Header.Set(HeaderEvent, WebhookEvent)
	if secret != "" {
		req.Header.Set(HeaderSignature, security.SignatureHeader(secret, payload))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
