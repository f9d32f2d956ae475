package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(data []byte) string {
	s := sha256.Sum256(data)
	return hex.EncodeToString(s[:])
}

func testInput() Input {
	rows := 2
	return Input{
		ExportID:        "exp-1",
		TenantID:        "tenant-a",
		ReportDate:      "2026-03-01",
		GeneratedAt:     time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC),
		RetentionDays:   730,
		EncryptedAtRest: true,
		Stats:           types.ExportStats{TotalLogs: 2},
		Artifacts: []Artifact{
			{Kind: types.ArtifactLogsCSV, FileName: "cleandoc_logs_2026-03-01_v1.csv", ContentType: "text/csv", Data: []byte("a;b\n1;2\n3;4\n"), RowCount: &rows},
			{Kind: types.ArtifactPDF, FileName: "cleandoc_daily_report_2026-03-01.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		},
	}
}

// TestBuildChecksumFidelity tests that every listed hash matches recomputation
func TestBuildChecksumFidelity(t *testing.T) {
	in := testInput()
	res, err := Build(in)
	require.NoError(t, err)

	assert.Equal(t, "cleandoc_manifest_2026-03-01.json", res.ManifestName)
	assert.Equal(t, "cleandoc_checksums_2026-03-01.txt", res.ChecksumsName)
	assert.Equal(t, sum(res.ManifestData), res.ManifestSHA256)
	assert.Equal(t, sum(res.ChecksumsData), res.ChecksumsSHA256)

	var m Manifest
	require.NoError(t, json.Unmarshal(res.ManifestData, &m))
	require.Len(t, m.Files, 2)
	for i, f := range m.Files {
		assert.Equal(t, sum(in.Artifacts[i].Data), f.SHA256)
		assert.Equal(t, int64(len(in.Artifacts[i].Data)), f.SizeBytes)
	}
	require.NotNil(t, m.Files[0].RowCount)
	assert.Equal(t, 2, *m.Files[0].RowCount)
	assert.Nil(t, m.Files[1].RowCount)
	assert.Equal(t, "SHA-256", m.Compliance.HashAlgorithm)
	assert.Equal(t, 730, m.Compliance.RetentionDays)
	assert.True(t, m.Compliance.EncryptedAtRest)

	sums, err := ParseChecksums(res.ChecksumsData)
	require.NoError(t, err)
	assert.Len(t, sums, 3)
	for _, a := range in.Artifacts {
		assert.Equal(t, sum(a.Data), sums[a.FileName])
	}
	assert.Equal(t, res.ManifestSHA256, sums[res.ManifestName])
}

func TestChecksumsFormat(t *testing.T) {
	res, err := Build(testInput())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(res.ChecksumsData), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		parts := strings.SplitN(line, "  ", 2)
		require.Len(t, parts, 2)
		assert.Len(t, parts[0], 64)
	}
	assert.True(t, strings.HasSuffix(lines[0], "cleandoc_daily_report_2026-03-01.pdf"), "sorted by name")
}

func TestBuildDeterministic(t *testing.T) {
	a, err := Build(testInput())
	require.NoError(t, err)
	b, err := Build(testInput())
	require.NoError(t, err)
	assert.Equal(t, a.ManifestSHA256, b.ManifestSHA256)
	assert.Equal(t, a.ChecksumsData, b.ChecksumsData)
}

func TestBuildRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{name: "missing date", mutate: func(in *Input) { in.ReportDate = "" }},
		{name: "wrong declared hash", mutate: func(in *Input) { in.Artifacts[0].SHA256 = strings.Repeat("0", 64) }},
		{name: "duplicate", mutate: func(in *Input) { in.Artifacts[1].FileName = in.Artifacts[0].FileName }},
		{name: "nameless", mutate: func(in *Input) { in.Artifacts[0].FileName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInput()
			tt.mutate(&in)
			_, err := Build(in)
			assert.Error(t, err)
		})
	}
}

// TestVerify tests re-checking files against a checksums file
func TestVerify(t *testing.T) {
	in := testInput()
	res, err := Build(in)
	require.NoError(t, err)

	files := map[string][]byte{res.ManifestName: res.ManifestData}
	for _, a := range in.Artifacts {
		files[a.FileName] = a.Data
	}

	mismatches, err := Verify(res.ChecksumsData, files)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	files["cleandoc_logs_2026-03-01_v1.csv"] = []byte("tampered")
	delete(files, "cleandoc_daily_report_2026-03-01.pdf")

	mismatches, err = Verify(res.ChecksumsData, files)
	require.NoError(t, err)
	require.Len(t, mismatches, 2)
	assert.Equal(t, "cleandoc_daily_report_2026-03-01.pdf", mismatches[0].FileName)
	assert.Empty(t, mismatches[0].Actual)
	assert.Equal(t, "cleandoc_logs_2026-03-01_v1.csv", mismatches[1].FileName)
	assert.Equal(t, sum([]byte("tampered")), mismatches[1].Actual)
}

func TestParseChecksumsMalformed(t *testing.T) {
	_, err := ParseChecksums([]byte("abc file.csv\n"))
	assert.Error(t, err)
}
