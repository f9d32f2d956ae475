package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRenderer struct {
	out  []byte
	err  error
	seen *ReportData
}

func (s *stubRenderer) Render(_ context.Context, data *ReportData) ([]byte, error) {
	s.seen = data
	return s.out, s.err
}

func TestBuildReport(t *testing.T) {
	tenant := &types.TenantExportSettings{TenantID: "tenant-a", Name: "Acme Foods"}
	generated := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)

	data := BuildReport(tenant, "2026-03-01", sampleRecords(), generated, nil)

	assert.Equal(t, 2, data.Summary.TotalLogs)
	assert.Equal(t, 1, data.Summary.CompletedLogs)
	assert.Equal(t, 0, data.Summary.FailedLogs)
	assert.Equal(t, 2, data.Summary.TotalSteps)
	assert.Equal(t, 2, data.Summary.TotalPhotos)
	assert.Equal(t, []string{`Bakery "Sonne"`}, data.Summary.Customers)
	require.Len(t, data.Logs, 2)
	assert.Equal(t, "45", data.Logs[0].Duration)

	checks := make(map[string]ChecklistItem)
	for _, c := range data.Checklist {
		checks[c.Label] = c
	}
	assert.False(t, checks["All activities completed"].Passed)
	assert.Equal(t, "1/2", checks["All activities completed"].Detail)
	assert.False(t, checks["Sign-off on every activity"].Passed)
	assert.True(t, checks["No failed activities"].Passed)
}

// TestRenderHTML tests that the report template escapes and includes content
func TestRenderHTML(t *testing.T) {
	tenant := &types.TenantExportSettings{TenantID: "tenant-a", Name: "<Acme>"}
	data := BuildReport(tenant, "2026-03-01", sampleRecords(), time.Now(), time.UTC)

	html, err := RenderHTML(data)
	require.NoError(t, err)

	assert.Contains(t, html, "Daily cleaning report")
	assert.Contains(t, html, "&lt;Acme&gt;")
	assert.NotContains(t, html, "<Acme>")
	assert.Contains(t, html, "Pre-rinse")
	assert.Contains(t, html, "QA checklist")
	assert.Contains(t, html, "No sign-off recorded")
}

func TestRenderHTMLEmptyDay(t *testing.T) {
	tenant := &types.TenantExportSettings{TenantID: "tenant-a"}
	data := BuildReport(tenant, "2026-03-01", nil, time.Now(), nil)

	html, err := RenderHTML(data)
	require.NoError(t, err)
	assert.True(t, strings.Contains(html, "No activities recorded"))
}

func TestGeneratePDF(t *testing.T) {
	tenant := &types.TenantExportSettings{TenantID: "tenant-a"}
	data := BuildReport(tenant, "2026-03-01", nil, time.Now(), nil)

	t.Run("hashes output", func(t *testing.T) {
		r := &stubRenderer{out: []byte("%PDF-1.7 fake")}
		doc, err := GeneratePDF(context.Background(), r, data)
		require.NoError(t, err)
		assert.Equal(t, "cleandoc_daily_report_2026-03-01.pdf", doc.FileName)
		assert.Equal(t, Checksum([]byte("%PDF-1.7 fake")), doc.SHA256)
		assert.Same(t, data, r.seen)
	})

	t.Run("renderer error", func(t *testing.T) {
		_, err := GeneratePDF(context.Background(), &stubRenderer{err: errors.New("no chromium")}, data)
		assert.ErrorContains(t, err, "no chromium")
	})

	t.Run("empty output", func(t *testing.T) {
		_, err := GeneratePDF(context.Background(), &stubRenderer{}, data)
		assert.Error(t, err)
	})
}
