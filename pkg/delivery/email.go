package delivery

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// Message is an email with attachments
type Message struct {
	To          []string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Mailer sends email
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPConfig configures SMTPMailer
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer sends email through an SMTP relay using go-mail
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer validates cfg and returns a mailer
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	return mail.NewClient(m.cfg.Host, opts...)
}

// newMsg renders msg into a go-mail message
func (m *SMTPMailer) newMsg(msg *Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := out.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.TextBody)
	if msg.HTMLBody != "" {
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTMLBody)
	}
	for _, a := range msg.Attachments {
		if err := out.AttachReader(a.FileName, bytes.NewReader(a.Data),
			mail.WithFileContentType(mail.ContentType(a.ContentType))); err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", a.FileName, err)
		}
	}
	return out, nil
}

// Send implements Mailer
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	out, err := m.newMsg(msg)
	if err != nil {
		return err
	}
	c, err := m.client()
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`<html><body>
<h2>Daily export {{.ReportDate}}</h2>
<p>{{.TenantName}}: {{.Stats.TotalLogs}} cleaning logs ({{.Stats.CompletedLogs}} completed, {{.Stats.FailedLogs}} failed), {{.Stats.TotalSteps}} steps, {{.Stats.TotalPhotos}} photos.</p>
<ul>
{{range .Files}}{{if .URL}}<li><a href="{{.URL}}">{{.FileName}}</a> <code>{{.SHA256}}</code></li>
{{end}}{{end}}</ul>
{{if not .LinksExpireAt.IsZero}}<p>Links expire {{.LinksExpireAt.UTC.Format "2006-01-02 15:04 MST"}}.</p>{{end}}
</body></html>`))

// buildEmail composes the notification sent to a tenant's recipients
func buildEmail(b *Bundle, to []string) *Message {
	name := b.TenantName
	if name == "" {
		name = b.TenantID
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Daily export %s for %s\n\n", b.ReportDate, name)
	fmt.Fprintf(&text, "Logs: %d (completed %d, failed %d)\nSteps: %d\nPhotos: %d\n\n",
		b.Stats.TotalLogs, b.Stats.CompletedLogs, b.Stats.FailedLogs, b.Stats.TotalSteps, b.Stats.TotalPhotos)
	for _, f := range b.Files {
		if f.URL == "" {
			continue
		}
		fmt.Fprintf(&text, "%s\n  sha256 %s\n  %s\n", f.FileName, f.SHA256, f.URL)
	}
	if !b.LinksExpireAt.IsZero() {
		fmt.Fprintf(&text, "\nLinks expire %s.\n", b.LinksExpireAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	var html bytes.Buffer
	data := struct {
		*Bundle
		TenantName string
	}{b, name}
	if err := emailTemplate.Execute(&html, data); err != nil {
		html.Reset()
	}

	return &Message{
		To:          to,
		Subject:     fmt.Sprintf("CleaniDoc daily export %s - %s", b.ReportDate, name),
		TextBody:    text.String(),
		HTMLBody:    html.String(),
		Attachments: b.Attachments(),
	}
}
