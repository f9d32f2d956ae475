package content

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
)

// ReportData is the view model of the daily PDF report
type ReportData struct {
	TenantID    string
	TenantName  string
	ReportDate  string
	GeneratedAt time.Time
	Location    *time.Location

	Summary   ReportSummary
	Logs      []ReportLog
	Checklist []ChecklistItem
}

// ReportSummary is the header table of the report
type ReportSummary struct {
	TotalLogs     int
	CompletedLogs int
	FailedLogs    int
	TotalSteps    int
	TotalPhotos   int
	Customers     []string
}

// ReportLog is one activity with its steps and sign-offs
type ReportLog struct {
	ID           string
	AreaName     string
	CustomerName string
	WorkerName   string
	Status       string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Duration     string
	Notes        string
	Steps        []types.StepRecord
	Signatures   []types.SignatureRecord
}

// ChecklistItem is one line of the QA checklist
type ChecklistItem struct {
	Label  string
	Passed bool
	Detail string
}

// BuildReport assembles the report view model. A nil loc renders UTC.
func BuildReport(tenant *types.TenantExportSettings, reportDate string, records []types.ActivityRecord, generatedAt time.Time, loc *time.Location) *ReportData {
	if loc == nil {
		loc = time.UTC
	}

	data := &ReportData{
		TenantID:    tenant.TenantID,
		TenantName:  tenant.Name,
		ReportDate:  reportDate,
		GeneratedAt: generatedAt,
		Location:    loc,
	}

	seen := make(map[string]bool)
	var withPhotos, withSignatures, completedSteps int

	for i := range records {
		rec := &records[i]
		data.Summary.TotalLogs++
		switch rec.Status {
		case types.ActivityStatusCompleted:
			data.Summary.CompletedLogs++
		case types.ActivityStatusFailed:
			data.Summary.FailedLogs++
		}
		data.Summary.TotalSteps += len(rec.Steps)
		data.Summary.TotalPhotos += rec.PhotoCount()
		completedSteps += rec.CompletedSteps()

		if rec.PhotoCount() > 0 {
			withPhotos++
		}
		if len(rec.Signatures) > 0 {
			withSignatures++
		}
		if rec.CustomerName != "" && !seen[rec.CustomerName] {
			seen[rec.CustomerName] = true
			data.Summary.Customers = append(data.Summary.Customers, rec.CustomerName)
		}

		data.Logs = append(data.Logs, ReportLog{
			ID:           rec.ID,
			AreaName:     rec.AreaName,
			CustomerName: rec.CustomerName,
			WorkerName:   rec.WorkerName,
			Status:       string(rec.Status),
			StartedAt:    rec.StartedAt,
			CompletedAt:  rec.CompletedAt,
			Duration:     DurationMinutes(rec.StartedAt, rec.CompletedAt),
			Notes:        rec.Notes,
			Steps:        rec.Steps,
			Signatures:   rec.Signatures,
		})
	}

	s := data.Summary
	data.Checklist = []ChecklistItem{
		{
			Label:  "All activities completed",
			Passed: s.TotalLogs > 0 && s.CompletedLogs == s.TotalLogs,
			Detail: fmt.Sprintf("%d/%d", s.CompletedLogs, s.TotalLogs),
		},
		{
			Label:  "All steps completed",
			Passed: completedSteps == s.TotalSteps,
			Detail: fmt.Sprintf("%d/%d", completedSteps, s.TotalSteps),
		},
		{
			Label:  "Photo evidence on every activity",
			Passed: withPhotos == s.TotalLogs,
			Detail: fmt.Sprintf("%d/%d", withPhotos, s.TotalLogs),
		},
		{
			Label:  "Sign-off on every activity",
			Passed: withSignatures == s.TotalLogs,
			Detail: fmt.Sprintf("%d/%d", withSignatures, s.TotalLogs),
		},
		{
			Label:  "No failed activities",
			Passed: s.FailedLogs == 0,
			Detail: fmt.Sprintf("%d failed", s.FailedLogs),
		},
	}

	return data
}

// RenderHTML executes the report template
func RenderHTML(data *ReportData) (string, error) {
	loc := data.Location
	if loc == nil {
		loc = time.UTC
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"ts": func(t *time.Time) string {
			if t == nil {
				return "–"
			}
			return t.In(loc).Format("02.01.2006 15:04")
		},
		"clock": func(t time.Time) string {
			return t.In(loc).Format("02.01.2006 15:04 MST")
		},
	}).Parse(reportTemplate)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

var reportTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Daily cleaning report {{.ReportDate}}</title>
  <style>
    body { font-family: 'Helvetica Neue', Arial, sans-serif; margin: 24px; color: #0f172a; font-size: 12px; }
    h1 { margin: 0 0 4px; font-size: 20px; }
    h2 { font-size: 15px; margin: 20px 0 6px; }
    table { width: 100%; border-collapse: collapse; margin-top: 6px; }
    th, td { padding: 5px; border-bottom: 1px solid #e2e8f0; text-align: left; vertical-align: top; }
    th { background: #f8fafc; }
    .card { border: 1px solid #e2e8f0; border-radius: 6px; padding: 10px; margin-bottom: 12px; page-break-inside: avoid; }
    .muted { color: #475569; }
    .pass { color: #15803d; }
    .fail { color: #b91c1c; }
    .thumb { width: 96px; height: 72px; object-fit: cover; margin: 2px; border: 1px solid #cbd5e1; }
  </style>
</head>
<body>
  <h1>Daily cleaning report</h1>
  <div class="muted">{{.TenantName}} ({{.TenantID}}) · {{.ReportDate}} · generated {{clock .GeneratedAt}}</div>

  <h2>Summary</h2>
  <table>
    <tr><th>Activities</th><th>Completed</th><th>Failed</th><th>Steps</th><th>Photos</th><th>Customers</th></tr>
    <tr>
      <td>{{.Summary.TotalLogs}}</td>
      <td>{{.Summary.CompletedLogs}}</td>
      <td>{{.Summary.FailedLogs}}</td>
      <td>{{.Summary.TotalSteps}}</td>
      <td>{{.Summary.TotalPhotos}}</td>
      <td>{{range $i, $c := .Summary.Customers}}{{if $i}}, {{end}}{{$c}}{{end}}</td>
    </tr>
  </table>

  <h2>QA checklist</h2>
  <table>
    {{range .Checklist}}
    <tr>
      <td>{{.Label}}</td>
      <td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}OK{{else}}OPEN{{end}}</td>
      <td class="muted">{{.Detail}}</td>
    </tr>
    {{end}}
  </table>

  <h2>Activities</h2>
  {{range .Logs}}
  <div class="card">
    <strong>{{.AreaName}}</strong> · {{.CustomerName}}
    <div class="muted">{{.ID}} · {{.Status}} · {{.WorkerName}} · {{ts .StartedAt}} – {{ts .CompletedAt}}{{if .Duration}} ({{.Duration}} min){{end}}</div>
    {{if .Notes}}<p>{{.Notes}}</p>{{end}}
    {{if .Steps}}
    <table>
      <tr><th>#</th><th>Step</th><th>Chemical</th><th>Dwell (min)</th><th>Done</th><th>Notes</th><th>Photos</th></tr>
      {{range .Steps}}
      <tr>
        <td>{{.Index}}</td>
        <td>{{.Name}}</td>
        <td>{{.Chemical}}</td>
        <td>{{.DwellTimeMinutes}}</td>
        <td>{{if .Completed}}✓ {{ts .CompletedAt}}{{else}}✗{{end}}</td>
        <td>{{.Notes}}</td>
        <td>{{range .Photos}}{{if .ThumbnailURL}}<img class="thumb" src="{{.ThumbnailURL}}" alt="{{.ID}}" />{{else}}<span class="muted">{{.ID}}</span> {{end}}{{end}}</td>
      </tr>
      {{end}}
    </table>
    {{end}}
    {{if .Signatures}}
    <table>
      <tr><th>Role</th><th>Signed by</th><th>At</th></tr>
      {{range .Signatures}}
      <tr><td>{{.Role}}</td><td>{{.SignerName}}</td><td>{{ts .SignedAt}}</td></tr>
      {{end}}
    </table>
    {{else}}
    <div class="fail">No sign-off recorded</div>
    {{end}}
  </div>
  {{else}}
  <p class="muted">No activities recorded for this date.</p>
  {{end}}
</body>
</html>
`
