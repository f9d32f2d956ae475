package content

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestDurationMinutes tests activity duration rounding
func TestDurationMinutes(t *testing.T) {
	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := base.Add(d)
		return &v
	}

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		want  string
	}{
		{name: "45 minutes", start: at(0), end: at(45 * time.Minute), want: "45"},
		{name: "missing end", start: at(0), end: nil, want: ""},
		{name: "missing start", start: nil, end: at(time.Minute), want: ""},
		{name: "both missing", want: ""},
		{name: "zero", start: at(0), end: at(0), want: "0"},
		{name: "rounds down", start: at(0), end: at(10*time.Minute + 29*time.Second), want: "10"},
		{name: "half rounds up", start: at(0), end: at(10*time.Minute + 30*time.Second), want: "11"},
		{name: "negative", start: at(time.Hour), end: at(0), want: ""},
		{name: "long shift", start: at(0), end: at(9*time.Hour + 5*time.Minute), want: "545"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DurationMinutes(tt.start, tt.end))
		})
	}
}
