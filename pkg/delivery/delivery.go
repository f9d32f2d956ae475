package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/metrics"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/rs/zerolog"
)

// Channel is a delivery route
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSFTP    Channel = "sftp"
	ChannelWebhook Channel = "webhook"
)

// ParseChannel validates a channel name
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelSFTP, ChannelWebhook:
		return c, nil
	}
	return "", fmt.Errorf("unknown delivery channel %q", s)
}

// Attachment is a file sent by email or written over SFTP
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// File describes one stored artifact of the export
type File struct {
	Kind     types.ArtifactKind `json:"kind"`
	FileName string             `json:"file_name"`
	SHA256   string             `json:"sha256"`
	Size     int64              `json:"size"`
	URL      string             `json:"url,omitempty"`
}

// Bundle is everything the channels need to deliver one export
type Bundle struct {
	ExportID      string
	TenantID      string
	TenantName    string
	ReportDate    string
	GeneratedAt   time.Time
	Stats         types.ExportStats
	Files         []File
	LinksExpireAt time.Time

	Archive *Attachment
	PDF     *Attachment
}

// Attachments returns the archive and, when present, the PDF
func (b *Bundle) Attachments() []Attachment {
	var out []Attachment
	if b.Archive != nil {
		out = append(out, *b.Archive)
	}
	if b.PDF != nil {
		out = append(out, *b.PDF)
	}
	return out
}

// ChannelResult is the outcome of one channel
type ChannelResult struct {
	Attempted  bool       `json:"attempted"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Attempts   int        `json:"attempts"`
	StatusCode int        `json:"status_code,omitempty"`
}

// Result holds the outcome of every channel
type Result struct {
	Email   ChannelResult `json:"email"`
	SFTP    ChannelResult `json:"sftp"`
	Webhook ChannelResult `json:"webhook"`
}

// Failed returns the channels that were attempted and failed
func (r *Result) Failed() []Channel {
	var out []Channel
	for _, c := range []struct {
		ch  Channel
		res ChannelResult
	}{{ChannelEmail, r.Email}, {ChannelSFTP, r.SFTP}, {ChannelWebhook, r.Webhook}} {
		if c.res.Attempted && !c.res.Success {
			out = append(out, c.ch)
		}
	}
	return out
}

// Update converts the result into the fields stored on the export record
func (r *Result) Update() types.DeliveryUpdate {
	upd := types.DeliveryUpdate{}
	if r.Email.Success {
		upd.EmailSentAt = r.Email.Timestamp
	}
	if r.SFTP.Success {
		upd.SFTPUploadedAt = r.SFTP.Timestamp
	}
	if r.Webhook.Success {
		upd.WebhookSentAt = r.Webhook.Timestamp
	}
	upd.WebhookResponseCode = r.Webhook.StatusCode

	for ch, res := range map[Channel]ChannelResult{
		ChannelEmail:   r.Email,
		ChannelSFTP:    r.SFTP,
		ChannelWebhook: r.Webhook,
	} {
		if res.Attempted && !res.Success {
			if upd.Errors == nil {
				upd.Errors = make(map[string]string)
			}
			upd.Errors[string(ch)] = res.Error
		}
	}
	return upd
}

// Config tunes retries and per-attempt timeouts
type Config struct {
	Retry          RetryPolicy
	EmailTimeout   time.Duration
	SFTPTimeout    time.Duration
	WebhookTimeout time.Duration
}

// DefaultConfig returns 3 attempts and 30s per attempt on every channel
func DefaultConfig() Config {
	return Config{
		Retry:          DefaultRetryPolicy,
		EmailTimeout:   30 * time.Second,
		SFTPTimeout:    30 * time.Second,
		WebhookTimeout: 30 * time.Second,
	}
}

// Dispatcher sends a finished export through every configured channel.
// Channels run one after another and fail independently.
type Dispatcher struct {
	cfg      Config
	mailer   Mailer
	uploader Uploader
	webhook  *WebhookClient
	now      func() time.Time
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. A nil mailer or uploader disables
// that channel.
func NewDispatcher(cfg Config, mailer Mailer, uploader Uploader, webhook *WebhookClient) *Dispatcher {
	if webhook == nil {
		webhook = NewWebhookClient(nil)
	}
	return &Dispatcher{
		cfg:      cfg,
		mailer:   mailer,
		uploader: uploader,
		webhook:  webhook,
		now:      time.Now,
		logger:   log.WithComponent("delivery"),
	}
}

// WithClock replaces the time source
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

func allowed(channels []Channel, ch Channel) bool {
	if len(channels) == 0 {
		return true
	}
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

// Deliver runs email, SFTP and webhook delivery in that order. channels
// restricts the set; empty means every configured channel.
func (d *Dispatcher) Deliver(ctx context.Context, bundle *Bundle, tenant *types.TenantExportSettings, channels []Channel) *Result {
	res := &Result{}
	logger := log.WithExport(d.logger, bundle.TenantID, bundle.ReportDate)

	if allowed(channels, ChannelEmail) && len(tenant.EmailRecipients) > 0 {
		if d.mailer == nil {
			logger.Warn().Msg("Email recipients configured but no SMTP server, skipping email")
		} else {
			res.Email = d.run(ctx, ChannelEmail, d.cfg.EmailTimeout, func(ctx context.Context) (int, error) {
				return 0, d.mailer.Send(ctx, buildEmail(bundle, tenant.EmailRecipients))
			})
		}
	}

	if allowed(channels, ChannelSFTP) && tenant.SFTP != nil && tenant.SFTP.Host != "" {
		if d.uploader == nil {
			logger.Warn().Msg("SFTP configured but no uploader available, skipping SFTP")
		} else {
			res.SFTP = d.run(ctx, ChannelSFTP, d.cfg.SFTPTimeout, func(ctx context.Context) (int, error) {
				return 0, d.uploader.Upload(ctx, tenant.SFTP, bundle.ReportDate, bundle.Attachments())
			})
		}
	}

	if allowed(channels, ChannelWebhook) && tenant.WebhookURL != "" {
		payload, err := NewWebhookPayload(bundle)
		if err != nil {
			res.Webhook = ChannelResult{Attempted: true, Error: err.Error()}
		} else {
			res.Webhook = d.run(ctx, ChannelWebhook, d.cfg.WebhookTimeout, func(ctx context.Context) (int, error) {
				return d.webhook.Send(ctx, tenant.WebhookURL, tenant.WebhookSecret, payload)
			})
		}
	}

	for _, ch := range res.Failed() {
		logger.Warn().Str("channel", string(ch)).Msg("Delivery channel failed")
	}
	return res
}

// run executes one channel inside Retry with a timeout per attempt
func (d *Dispatcher) run(ctx context.Context, ch Channel, timeout time.Duration, send func(ctx context.Context) (int, error)) ChannelResult {
	res := ChannelResult{Attempted: true}

	attempts, err := Retry(ctx, d.cfg.Retry, func(ctx context.Context, attempt int) error {
		actx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		code, err := send(actx)
		if code != 0 {
			res.StatusCode = code
		}
		if err != nil {
			metrics.DeliveryAttemptsTotal.WithLabelValues(string(ch), "failure").Inc()
			d.logger.Debug().Err(err).Str("channel", string(ch)).Int("attempt", attempt).Msg("Delivery attempt failed")
			return err
		}
		metrics.DeliveryAttemptsTotal.WithLabelValues(string(ch), "success").Inc()
		return nil
	})

	ts := d.now().UTC()
	res.Timestamp = &ts
	res.Attempts = attempts
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}
