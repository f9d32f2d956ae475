package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestAuditFilterMatch tests audit filter matching
func TestAuditFilterMatch(t *testing.T) {
	actor := "user-1"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := &AuditEvent{
		ActorID:      &actor,
		Action:       "EXPORT_COMPLETED",
		ResourceType: "export",
		ResourceID:   "exp-1",
		CreatedAt:    now,
	}
	system := &AuditEvent{Action: "EXPORT_COMPLETED", CreatedAt: now}

	tests := []struct {
		name   string
		filter AuditFilter
		event  *AuditEvent
		want   bool
	}{
		{name: "empty filter", filter: AuditFilter{}, event: ev, want: true},
		{name: "action match", filter: AuditFilter{Action: "EXPORT_COMPLETED"}, event: ev, want: true},
		{name: "action mismatch", filter: AuditFilter{Action: "EXPORT_FAILED"}, event: ev, want: false},
		{name: "resource", filter: AuditFilter{ResourceType: "export", ResourceID: "exp-1"}, event: ev, want: true},
		{name: "actor match", filter: AuditFilter{ActorID: "user-1"}, event: ev, want: true},
		{name: "actor on system event", filter: AuditFilter{ActorID: "user-1"}, event: system, want: false},
		{name: "from after event", filter: AuditFilter{From: now.Add(time.Minute)}, event: ev, want: false},
		{name: "to before event", filter: AuditFilter{To: now.Add(-time.Minute)}, event: ev, want: false},
		{name: "window", filter: AuditFilter{From: now.Add(-time.Hour), To: now.Add(time.Hour)}, event: ev, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.event))
		})
	}
}

// TestExportStatusTerminal tests terminal status detection
func TestExportStatusTerminal(t *testing.T) {
	assert.False(t, ExportStatusPending.Terminal())
	assert.False(t, ExportStatusProcessing.Terminal())
	assert.True(t, ExportStatusCompleted.Terminal())
	assert.True(t, ExportStatusFailed.Terminal())
}

func TestRetentionDefault(t *testing.T) {
	s := &TenantExportSettings{}
	assert.Equal(t, DefaultRetentionDays, s.Retention())
	s.RetentionDays = 30
	assert.Equal(t, 30, s.Retention())
}

// TestValidateTenantID tests that tenant ids stay a single key segment
func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"tenant-a", true},
		{"acme_foods.eu", true},
		{"", false},
		{".", false},
		{"..", false},
		{"a/b", false},
		{"../tenant-b", false},
		{"tenant-a/..", false},
		{`a\b`, false},
		{"a:b", false},
		{"acme foods", false},
		{"acme\n", false},
		{strings.Repeat("x", MaxTenantIDLength), true},
		{strings.Repeat("x", MaxTenantIDLength+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateTenantID(tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
