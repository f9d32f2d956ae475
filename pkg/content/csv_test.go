package content

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func sampleRecords() []types.ActivityRecord {
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	return []types.ActivityRecord{
		{
			ID:           "log-1",
			TenantID:     "tenant-a",
			ReportDate:   "2026-03-01",
			AreaID:       "area-1",
			AreaName:     "Kitchen; Line 2",
			CustomerName: `Bakery "Sonne"`,
			Status:       types.ActivityStatusCompleted,
			StartedAt:    ptr(start),
			CompletedAt:  ptr(start.Add(45 * time.Minute)),
			WorkerName:   "Ana",
			Notes:        "first line\nsecond line\r\nthird",
			Steps: []types.StepRecord{
				{
					Index:            1,
					Name:             "Pre-rinse",
					Chemical:         "Water",
					DwellTimeMinutes: 2,
					Completed:        true,
					CompletedAt:      ptr(start.Add(5 * time.Minute)),
					Photos: []types.PhotoRecord{
						{ID: "p1", StoragePath: "photos/p1.jpg", ContentType: "image/jpeg", Width: 640, Height: 480, SHA256: "aa"},
						{ID: "p2", StoragePath: "photos/p2.jpg", ContentType: "image/jpeg", Width: 640, Height: 480, SHA256: "bb"},
					},
				},
				{
					Index:    2,
					Name:     "Sanitize",
					Chemical: "Quat; 200ppm",
					Notes:    "ran \"long\"",
				},
			},
			Signatures: []types.SignatureRecord{{Role: "supervisor", SignerName: "Ben"}},
		},
		{
			ID:         "log-2",
			TenantID:   "tenant-a",
			ReportDate: "2026-03-01",
			AreaName:   "Storage",
			Status:     types.ActivityStatusPending,
			StartedAt:  ptr(start),
		},
	}
}

func parse(t *testing.T, data []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = ';'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

// TestGenerateCSVRoundTrip tests that a standard CSV reader recovers the rows
func TestGenerateCSVRoundTrip(t *testing.T) {
	set, err := GenerateCSV("tenant-a", "2026-03-01", sampleRecords())
	require.NoError(t, err)

	for _, table := range set.Tables() {
		t.Run(table.FileName, func(t *testing.T) {
			rows := parse(t, table.Data)
			require.Len(t, rows, table.RowCount()+1)
			assert.Equal(t, table.Header, rows[0])
			assert.Equal(t, table.Rows, rows[1:])
		})
	}

	logs := parse(t, set.Logs.Data)
	first := logs[1]
	assert.Equal(t, "Kitchen; Line 2", first[4])
	assert.Equal(t, `Bakery "Sonne"`, first[5])
	assert.Equal(t, "45", first[11])
	assert.Equal(t, "2", first[12])
	assert.Equal(t, "1", first[13])
	assert.Equal(t, "2", first[14])
	assert.Equal(t, "1", first[15])
	assert.Equal(t, "first line second line third", first[16])

	second := logs[2]
	assert.Equal(t, "", second[10], "missing completed_at")
	assert.Equal(t, "", second[11], "duration without end")

	steps := parse(t, set.Steps.Data)
	require.Len(t, steps, 3)
	assert.Equal(t, "Quat; 200ppm", steps[2][5])
	assert.Equal(t, `ran "long"`, steps[2][10])

	photos := parse(t, set.Photos.Data)
	require.Len(t, photos, 3)
	assert.Equal(t, "p2", photos[2][4])
}

func TestGenerateCSVLayout(t *testing.T) {
	set, err := GenerateCSV("tenant-a", "2026-03-01", sampleRecords())
	require.NoError(t, err)

	assert.Equal(t, "cleandoc_logs_2026-03-01_v1.csv", set.Logs.FileName)
	assert.Equal(t, "cleandoc_log_steps_2026-03-01_v1.csv", set.Steps.FileName)
	assert.Equal(t, "cleandoc_log_photos_2026-03-01_v1.csv", set.Photos.FileName)

	// one physical line per record
	lines := bytes.Count(set.Logs.Data, []byte("\n"))
	assert.Equal(t, 3, lines)
	assert.False(t, bytes.Contains(set.Logs.Data, []byte("\r")))
	assert.True(t, bytes.HasPrefix(set.Logs.Data, []byte("tenant_id;report_date;log_id;")))
}

// TestGenerateCSVChecksums tests that each table hash matches its bytes
func TestGenerateCSVChecksums(t *testing.T) {
	set, err := GenerateCSV("tenant-a", "2026-03-01", sampleRecords())
	require.NoError(t, err)

	for _, table := range set.Tables() {
		sum := sha256.Sum256(table.Data)
		assert.Equal(t, hex.EncodeToString(sum[:]), table.SHA256, table.FileName)
	}

	again, err := GenerateCSV("tenant-a", "2026-03-01", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, set.Logs.SHA256, again.Logs.SHA256, "deterministic output")
}

func TestGenerateCSVEmpty(t *testing.T) {
	set, err := GenerateCSV("tenant-a", "2026-03-01", nil)
	require.NoError(t, err)

	for _, table := range set.Tables() {
		rows := parse(t, table.Data)
		assert.Len(t, rows, 1, "header only")
		assert.Equal(t, 0, table.RowCount())
	}
}

func TestGenerateCSVInvalidDate(t *testing.T) {
	_, err := GenerateCSV("tenant-a", "01.03.2026", nil)
	assert.Error(t, err)
}

// TestEscapeField tests CSV field escaping
func TestEscapeField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "", want: ""},
		{in: "a;b", want: `"a;b"`},
		{in: `say "hi"`, want: `"say ""hi"""`},
		{in: "line\nbreak", want: "\"line\nbreak\""},
		{in: "cr\rhere", want: "\"cr\rhere\""},
		{in: "comma, is fine", want: "comma, is fine"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeField(tt.in))
		})
	}
}

func TestFlattenText(t *testing.T) {
	assert.Equal(t, "a b c d", FlattenText("a\r\nb\rc\nd"))
	assert.Equal(t, "unchanged", FlattenText("unchanged"))
}
