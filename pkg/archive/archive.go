package archive

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/content"
	"github.com/klauspost/compress/zip"
)

const ContentType = "application/zip"

// FileName returns the archive file name for a report date
func FileName(reportDate string) string {
	return fmt.Sprintf("cleandoc_export_%s.zip", reportDate)
}

// File is one entry of the archive
type File struct {
	Name string
	Data []byte
}

// Archive is a built zip with its checksum
type Archive struct {
	FileName string
	Data     []byte
	SHA256   string
}

// Build writes files into a deflate zip in the given order. Every entry
// gets modTime so the same inputs always produce the same bytes.
func Build(reportDate string, files []File, modTime time.Time) (*Archive, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if f.Name == "" {
			return nil, fmt.Errorf("archive entry without name")
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate archive entry %s", f.Name)
		}
		seen[f.Name] = true

		hdr := &zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: modTime.UTC(),
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("failed to create entry %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write entry %s: %w", f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	data := buf.Bytes()
	return &Archive{
		FileName: FileName(reportDate),
		Data:     data,
		SHA256:   content.Checksum(data),
	}, nil
}

// Extract reads every entry of a zip into memory, keyed by name
func Extract(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", f.Name, err)
		}
		out[f.Name] = b
	}
	return out, nil
}
