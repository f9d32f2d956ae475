/*
Package delivery sends a finished export to a tenant through email, SFTP
and a signed webhook.

Delivery happens after the export record is COMPLETED. Its outcome is
reported back to the caller and stored on the record's delivery fields,
but it never changes the record's status: an export whose webhook is down
is still a complete export with downloadable links.

# Architecture

	┌────────────────────── Dispatcher.Deliver ──────────────────────┐
	│                                                                  │
	│   Bundle (ids, stats, files, links, archive, pdf)                │
	│   TenantExportSettings (recipients, sftp, webhook url + secret)  │
	│   channel filter (empty = all configured)                        │
	│                                                                  │
	│      ┌─────────┐        ┌─────────┐        ┌──────────┐          │
	│      │  email  │──────▶ │  sftp   │──────▶ │ webhook  │          │
	│      └────┬────┘        └────┬────┘        └────┬─────┘          │
	│           │ Retry            │ Retry            │ Retry          │
	│           ▼                  ▼                  ▼                │
	│      ChannelResult      ChannelResult      ChannelResult         │
	│                                                                  │
	└──────────────────────────────┬───────────────────────────────────┘
	                               ▼
	                Result.Update() → storage RecordDelivery

Channels run sequentially in the order email, SFTP, webhook. A channel is
attempted only when the tenant configures it and the caller's channel
list allows it. Exhausting the retries marks that channel failed and
delivery moves on; one channel never blocks another.

	email    go-mail over SMTP, archive and PDF attached, links in the body
	sftp     x/crypto/ssh + pkg/sftp, files written to <remote>/<date>/
	webhook  POST JSON, HMAC-SHA256 signed

A channel the tenant configures but the process cannot serve is skipped
with a warning: recipients without an SMTP server, or SFTP settings
without an uploader.

# Retries

Every channel runs inside Retry. DefaultRetryPolicy makes three attempts
and waits BaseDelay times the attempt number between them:

	attempt 1 ── fail ── wait 5s ── attempt 2 ── fail ── wait 10s ── attempt 3

Each attempt gets its own timeout from Config (30s per channel by
default), so a hung SMTP or SFTP server costs one attempt and not the
whole run. A cancelled context ends the wait and returns the last error.
Every attempt is counted in cleandoc_delivery_attempts_total by channel
and outcome.

# Email

SMTPMailer builds a multipart message with a plain text body and an HTML
alternative listing every file with its link and SHA-256. The
archive is attached, and so is the PDF when the export has one. STARTTLS
is used when the server offers it. Port 587 is the default.

# SFTP

SFTPUploader authenticates with a private key, a password or both, and
writes every attachment under <remote_path>/<report date>/, creating the
directory when needed. A configured host key in authorized_keys format
pins the server; without one the host identity is not verified and a
warning is logged on every connection. The TCP connection is closed when
the attempt's context ends, so a stalled transfer cannot outlive its
timeout.

# Webhook Contract

	POST <webhook_url>
	Content-Type: application/json
	User-Agent: CleaniDoc-Webhook/1.0
	X-CleaniDoc-Event: daily_export_completed
	X-CleaniDoc-Signature: sha256=<hex hmac of the body>

The body carries the event, export id, tenant id, report date, generation
time, stats, the file list and the link expiry. Redirects are not
followed. Any status outside 2xx is a failed attempt. The signature header
is only sent when the tenant has a webhook secret; receivers verify the
body with security.VerifySignature.

# Results

Result records per channel whether it was attempted, whether it
succeeded, the attempt count, the last error, the completion time and,
for webhooks, the last HTTP status. Result.Update turns it into the
delivery fields stored on the export record:

	email_sent_at            email succeeded
	sftp_uploaded_at         SFTP succeeded
	webhook_sent_at          webhook succeeded
	webhook_response_code    last status seen
	delivery_errors          channel -> last error, for failed channels

# Usage

	mailer, err := delivery.NewSMTPMailer(delivery.SMTPConfig{
		Host: "smtp.example.com",
		From: "exports@example.com",
	})
	if err != nil {
		return err
	}
	d := delivery.NewDispatcher(delivery.DefaultConfig(), mailer, delivery.NewSFTPUploader(), nil)

	res := d.Deliver(ctx, bundle, tenant, []delivery.Channel{delivery.ChannelWebhook})
	for _, ch := range res.Failed() {
		log.Printf("%s failed: %s", ch, res.Webhook.Error)
	}

# Troubleshooting

A webhook failing with status 0 never got a response: check DNS, TLS and
the attempt timeout. A 3xx status means the receiver redirected, which is
treated as a failure.

SFTP failures naming the handshake usually mean a wrong host key or
rejected credentials; failures naming the remote directory mean the user
lacks write access under remote_path.
*/
package delivery
