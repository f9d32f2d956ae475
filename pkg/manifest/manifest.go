package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/content"
	"github.com/cleanidoc/cleandoc/pkg/types"
)

const (
	SchemaVersion = "1.0"
	HashAlgorithm = "SHA-256"

	ManifestContentType  = "application/json"
	ChecksumsContentType = "text/plain; charset=utf-8"
)

// FileName returns the manifest file name for a report date
func FileName(reportDate string) string {
	return fmt.Sprintf("cleandoc_manifest_%s.json", reportDate)
}

// ChecksumsFileName returns the checksums file name for a report date
func ChecksumsFileName(reportDate string) string {
	return fmt.Sprintf("cleandoc_checksums_%s.txt", reportDate)
}

// Artifact describes one file listed in the manifest
type Artifact struct {
	Kind        types.ArtifactKind
	FileName    string
	ContentType string
	Data        []byte
	SHA256      string
	// RowCount is set for tables only
	RowCount *int
}

// Input collects everything the manifest describes
type Input struct {
	ExportID        string
	TenantID        string
	ReportDate      string
	GeneratedAt     time.Time
	RetentionDays   int
	EncryptedAtRest bool
	Stats           types.ExportStats
	Artifacts       []Artifact
}

// Manifest is the JSON document shipped with every export
type Manifest struct {
	SchemaVersion string            `json:"schema_version"`
	ExportID      string            `json:"export_id"`
	TenantID      string            `json:"tenant_id"`
	ReportDate    string            `json:"report_date"`
	GeneratedAt   string            `json:"generated_at"`
	Files         []FileEntry       `json:"files"`
	Compliance    Compliance        `json:"compliance"`
	Summary       types.ExportStats `json:"summary"`
}

// FileEntry is one artifact in the manifest
type FileEntry struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	RowCount    *int   `json:"row_count,omitempty"`
	SHA256      string `json:"sha256"`
}

// Compliance states the retention and integrity guarantees of the export
type Compliance struct {
	RetentionDays   int    `json:"retention_days"`
	EncryptedAtRest bool   `json:"encrypted_at_rest"`
	HashAlgorithm   string `json:"hash_algorithm"`
}

// Result holds the rendered manifest and checksums files
type Result struct {
	Manifest       *Manifest
	ManifestName   string
	ManifestData   []byte
	ManifestSHA256 string

	ChecksumsName   string
	ChecksumsData   []byte
	ChecksumsSHA256 string
}

// Build renders the manifest and the checksums file. Hashes that are
// missing on an artifact are computed from its data; present hashes are
// verified against it.
func Build(in Input) (*Result, error) {
	if in.ReportDate == "" {
		return nil, fmt.Errorf("report date is required")
	}

	m := &Manifest{
		SchemaVersion: SchemaVersion,
		ExportID:      in.ExportID,
		TenantID:      in.TenantID,
		ReportDate:    in.ReportDate,
		GeneratedAt:   in.GeneratedAt.UTC().Format(time.RFC3339),
		Compliance: Compliance{
			RetentionDays:   in.RetentionDays,
			EncryptedAtRest: in.EncryptedAtRest,
			HashAlgorithm:   HashAlgorithm,
		},
		Summary: in.Stats,
	}

	sums := make(map[string]string, len(in.Artifacts)+1)
	for _, a := range in.Artifacts {
		if a.FileName == "" {
			return nil, fmt.Errorf("artifact %s has no file name", a.Kind)
		}
		if _, dup := sums[a.FileName]; dup {
			return nil, fmt.Errorf("duplicate artifact %s", a.FileName)
		}
		actual := content.Checksum(a.Data)
		if a.SHA256 != "" && a.SHA256 != actual {
			return nil, fmt.Errorf("checksum mismatch for %s", a.FileName)
		}
		sums[a.FileName] = actual
		m.Files = append(m.Files, FileEntry{
			Name:        a.FileName,
			Kind:        string(a.Kind),
			ContentType: a.ContentType,
			SizeBytes:   int64(len(a.Data)),
			RowCount:    a.RowCount,
			SHA256:      actual,
		})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	res := &Result{
		Manifest:       m,
		ManifestName:   FileName(in.ReportDate),
		ManifestData:   data,
		ManifestSHA256: content.Checksum(data),
		ChecksumsName:  ChecksumsFileName(in.ReportDate),
	}
	sums[res.ManifestName] = res.ManifestSHA256

	res.ChecksumsData = renderChecksums(sums)
	res.ChecksumsSHA256 = content.Checksum(res.ChecksumsData)
	return res, nil
}

// renderChecksums writes "<sha256>  <filename>" lines sorted by file name
func renderChecksums(sums map[string]string) []byte {
	names := make([]string, 0, len(sums))
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&buf, "%s  %s\n", sums[name], name)
	}
	return buf.Bytes()
}

// ParseChecksums reads a checksums file into file name → hash
func ParseChecksums(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		hash, name, ok := strings.Cut(text, "  ")
		if !ok || len(hash) != 64 || name == "" {
			return nil, fmt.Errorf("malformed checksum line %d", line)
		}
		out[name] = hash
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Mismatch is a file whose content no longer matches the checksums file
type Mismatch struct {
	FileName string
	Expected string
	Actual   string
}

// Verify recomputes the hash of every listed file present in files.
// Listed files missing from files are reported with an empty Actual.
func Verify(checksums []byte, files map[string][]byte) ([]Mismatch, error) {
	expected, err := ParseChecksums(checksums)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Mismatch
	for _, name := range names {
		data, ok := files[name]
		if !ok {
			out = append(out, Mismatch{FileName: name, Expected: expected[name]})
			continue
		}
		if actual := content.Checksum(data); actual != expected[name] {
			out = append(out, Mismatch{FileName: name, Expected: expected[name], Actual: actual})
		}
	}
	return out, nil
}
