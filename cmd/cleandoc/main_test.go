package main

import (
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/delivery"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedDoc = `
tenants:
  - tenant_id: acme
    name: Acme Foods
    enabled: true
    retention_days: 365
    include_csv: true
    include_pdf: false
    email_recipients: [qa@acme.test]
activities:
  - id: log-1
    tenant_id: acme
    report_date: "2026-03-01"
    area_id: area-1
    area_name: Line 1
    status: completed
    started_at: 2026-03-01T08:00:00Z
    completed_at: 2026-03-01T08:45:00Z
    steps:
      - index: 1
        name: Rinse
        completed: true
        photos:
          - id: photo-1
            storage_path: photos/acme/photo-1.jpg
            content_type: image/jpeg
`

// TestParseSeed tests decoding and validation of seed documents
func TestParseSeed(t *testing.T) {
	seed, err := parseSeed([]byte(seedDoc), nil)
	require.NoError(t, err)

	require.Len(t, seed.Tenants, 1)
	tenant := seed.Tenants[0]
	assert.Equal(t, "acme", tenant.TenantID)
	assert.Equal(t, 365, tenant.Retention())
	assert.Equal(t, []string{"qa@acme.test"}, tenant.EmailRecipients)
	assert.False(t, tenant.IncludePDF)

	require.Len(t, seed.Activities, 1)
	act := seed.Activities[0]
	assert.Equal(t, types.ActivityStatusCompleted, act.Status)
	require.NotNil(t, act.StartedAt)
	assert.True(t, act.StartedAt.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, act.PhotoCount())

	tests := []struct {
		name  string
		doc   string
		known map[string]bool
		want  string
	}{
		{
			name: "tenant without id",
			doc:  "tenants:\n  - name: nobody\n",
			want: "tenant_id is required",
		},
		{
			name: "tenant id with a path separator",
			doc:  "tenants:\n  - tenant_id: acme/eu\n",
			want: "must not contain",
		},
		{
			name: "activity of unknown tenant",
			doc:  "activities:\n  - {id: a, tenant_id: ghost, report_date: \"2026-03-01\", status: completed}\n",
			want: `unknown tenant "ghost"`,
		},
		{
			name:  "bad report date",
			doc:   "activities:\n  - {id: a, tenant_id: acme, report_date: \"03/01/2026\", status: completed}\n",
			known: map[string]bool{"acme": true},
			want:  "report_date must be YYYY-MM-DD",
		},
		{
			name:  "bad status",
			doc:   "activities:\n  - {id: a, tenant_id: acme, report_date: \"2026-03-01\", status: done}\n",
			known: map[string]bool{"acme": true},
			want:  `unknown status "done"`,
		},
		{
			name: "not yaml",
			doc:  "tenants: [",
			want: "failed to parse YAML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed([]byte(tt.doc), tt.known)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("activity of stored tenant", func(t *testing.T) {
		doc := "activities:\n  - {id: a, tenant_id: acme, report_date: \"2026-03-01\", status: pending}\n"
		seed, err := parseSeed([]byte(doc), map[string]bool{"acme": true})
		require.NoError(t, err)
		assert.Len(t, seed.Activities, 1)
	})
}

func newRunFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().Bool("no-pdf", false, "")
	cmd.Flags().Bool("no-csv", false, "")
	cmd.Flags().StringSlice("channel", nil, "")
	cmd.Flags().Bool("skip-delivery", false, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

// TestExportOptions tests that unset flags keep the tenant defaults
func TestExportOptions(t *testing.T) {
	opts, err := exportOptions(newRunFlags(t))
	require.NoError(t, err)
	assert.Nil(t, opts.IncludePDF)
	assert.Nil(t, opts.IncludeCSV)
	assert.Empty(t, opts.DeliveryChannels)
	assert.False(t, opts.SkipDelivery)

	opts, err = exportOptions(newRunFlags(t, "--no-pdf", "--channel", "email,webhook", "--skip-delivery"))
	require.NoError(t, err)
	require.NotNil(t, opts.IncludePDF)
	assert.False(t, *opts.IncludePDF)
	assert.Nil(t, opts.IncludeCSV)
	assert.Equal(t, []delivery.Channel{delivery.ChannelEmail, delivery.ChannelWebhook}, opts.DeliveryChannels)
	assert.True(t, opts.SkipDelivery)

	opts, err = exportOptions(newRunFlags(t, "--no-csv=false"))
	require.NoError(t, err)
	require.NotNil(t, opts.IncludeCSV)
	assert.True(t, *opts.IncludeCSV)

	_, err = exportOptions(newRunFlags(t, "--channel", "fax"))
	assert.Error(t, err)
}
