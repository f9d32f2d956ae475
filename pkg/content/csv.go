package content

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
)

const (
	// Delimiter separates CSV fields
	Delimiter = ';'

	// CSVVersion is embedded in every table file name and bumps with the
	// header layout
	CSVVersion = "v1"

	CSVContentType = "text/csv; charset=utf-8"
)

var (
	logsHeader = []string{
		"tenant_id", "report_date", "log_id", "area_id", "area_name",
		"customer_name", "status", "worker_id", "worker_name", "started_at",
		"completed_at", "duration_minutes", "total_steps", "completed_steps",
		"photo_count", "signature_count", "notes",
	}
	stepsHeader = []string{
		"tenant_id", "report_date", "log_id", "step_index", "step_name",
		"chemical", "dwell_time_minutes", "completed", "completed_at",
		"photo_count", "notes",
	}
	photosHeader = []string{
		"tenant_id", "report_date", "log_id", "step_index", "photo_id",
		"storage_path", "content_type", "width", "height", "sha256", "taken_at",
	}
)

// Table is one rendered CSV file
type Table struct {
	Kind     types.ArtifactKind
	FileName string
	Header   []string
	Rows     [][]string
	Data     []byte
	SHA256   string
}

// RowCount returns the number of data rows, excluding the header
func (t *Table) RowCount() int {
	return len(t.Rows)
}

// CSVSet holds the three tables of a daily export
type CSVSet struct {
	Logs   *Table
	Steps  *Table
	Photos *Table
}

// Tables returns the tables in their canonical order
func (s *CSVSet) Tables() []*Table {
	return []*Table{s.Logs, s.Steps, s.Photos}
}

// LogsFileName returns the file name of the logs table
func LogsFileName(reportDate string) string {
	return fmt.Sprintf("cleandoc_logs_%s_%s.csv", reportDate, CSVVersion)
}

// StepsFileName returns the file name of the steps table
func StepsFileName(reportDate string) string {
	return fmt.Sprintf("cleandoc_log_steps_%s_%s.csv", reportDate, CSVVersion)
}

// PhotosFileName returns the file name of the photos table
func PhotosFileName(reportDate string) string {
	return fmt.Sprintf("cleandoc_log_photos_%s_%s.csv", reportDate, CSVVersion)
}

// GenerateCSV renders the logs, steps and photos tables for one tenant and
// report date. Rows follow the order of records and of their steps.
func GenerateCSV(tenantID, reportDate string, records []types.ActivityRecord) (*CSVSet, error) {
	if _, err := time.Parse(types.DateLayout, reportDate); err != nil {
		return nil, fmt.Errorf("invalid report date %q: %w", reportDate, err)
	}

	logs := &Table{Kind: types.ArtifactLogsCSV, FileName: LogsFileName(reportDate), Header: logsHeader}
	steps := &Table{Kind: types.ArtifactStepsCSV, FileName: StepsFileName(reportDate), Header: stepsHeader}
	photos := &Table{Kind: types.ArtifactPhotosCSV, FileName: PhotosFileName(reportDate), Header: photosHeader}

	for i := range records {
		rec := &records[i]
		logs.Rows = append(logs.Rows, []string{
			tenantID,
			reportDate,
			rec.ID,
			rec.AreaID,
			FlattenText(rec.AreaName),
			FlattenText(rec.CustomerName),
			string(rec.Status),
			rec.WorkerID,
			FlattenText(rec.WorkerName),
			formatTime(rec.StartedAt),
			formatTime(rec.CompletedAt),
			DurationMinutes(rec.StartedAt, rec.CompletedAt),
			strconv.Itoa(len(rec.Steps)),
			strconv.Itoa(rec.CompletedSteps()),
			strconv.Itoa(rec.PhotoCount()),
			strconv.Itoa(len(rec.Signatures)),
			FlattenText(rec.Notes),
		})

		for _, step := range rec.Steps {
			steps.Rows = append(steps.Rows, []string{
				tenantID,
				reportDate,
				rec.ID,
				strconv.Itoa(step.Index),
				FlattenText(step.Name),
				FlattenText(step.Chemical),
				strconv.Itoa(step.DwellTimeMinutes),
				strconv.FormatBool(step.Completed),
				formatTime(step.CompletedAt),
				strconv.Itoa(len(step.Photos)),
				FlattenText(step.Notes),
			})

			for _, photo := range step.Photos {
				photos.Rows = append(photos.Rows, []string{
					tenantID,
					reportDate,
					rec.ID,
					strconv.Itoa(step.Index),
					photo.ID,
					photo.StoragePath,
					photo.ContentType,
					strconv.Itoa(photo.Width),
					strconv.Itoa(photo.Height),
					photo.SHA256,
					formatTime(photo.TakenAt),
				})
			}
		}
	}

	set := &CSVSet{Logs: logs, Steps: steps, Photos: photos}
	for _, t := range set.Tables() {
		t.Data = encodeTable(t.Header, t.Rows)
		t.SHA256 = Checksum(t.Data)
	}
	return set, nil
}

func encodeTable(header []string, rows [][]string) []byte {
	var buf bytes.Buffer
	writeRow(&buf, header)
	for _, row := range rows {
		writeRow(&buf, row)
	}
	return buf.Bytes()
}

func writeRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(Delimiter)
		}
		buf.WriteString(EscapeField(f))
	}
	buf.WriteByte('\n')
}

// EscapeField quotes v when it contains the delimiter, a quote or a line
// break, doubling inner quotes.
func EscapeField(v string) string {
	if !strings.ContainsAny(v, ";\"\r\n") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// FlattenText replaces line breaks in free text with single spaces
func FlattenText(v string) string {
	return lineBreaks.Replace(v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
