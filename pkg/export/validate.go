package export

import (
	"fmt"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/types"
)

// validateArgs checks the trigger inputs before anything is written
func validateArgs(tenantID, reportDate string) error {
	var problems []string
	if err := types.ValidateTenantID(tenantID); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := time.Parse(types.DateLayout, reportDate); err != nil {
		problems = append(problems, fmt.Sprintf("report date %q is not YYYY-MM-DD", reportDate))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// validateRecords runs the structural checks on the day's records
func validateRecords(tenantID, reportDate string, records []types.ActivityRecord) error {
	var problems []string
	seen := make(map[string]bool, len(records))

	for i := range records {
		rec := &records[i]
		ref := rec.ID
		if ref == "" {
			ref = fmt.Sprintf("#%d", i)
			problems = append(problems, fmt.Sprintf("record %s has no id", ref))
		} else if seen[rec.ID] {
			problems = append(problems, fmt.Sprintf("record %s is duplicated", ref))
		}
		seen[rec.ID] = true

		if rec.TenantID != tenantID {
			problems = append(problems, fmt.Sprintf("record %s belongs to tenant %q", ref, rec.TenantID))
		}
		if rec.ReportDate != "" && rec.ReportDate != reportDate {
			problems = append(problems, fmt.Sprintf("record %s is dated %s", ref, rec.ReportDate))
		}
		if !rec.Status.Valid() {
			problems = append(problems, fmt.Sprintf("record %s has unknown status %q", ref, rec.Status))
		}

		indices := make(map[int]bool, len(rec.Steps))
		for _, step := range rec.Steps {
			if step.Index < 0 {
				problems = append(problems, fmt.Sprintf("record %s has negative step index %d", ref, step.Index))
			} else if indices[step.Index] {
				problems = append(problems, fmt.Sprintf("record %s repeats step index %d", ref, step.Index))
			}
			indices[step.Index] = true

			for _, photo := range step.Photos {
				if photo.Width < 0 || photo.Height < 0 {
					problems = append(problems, fmt.Sprintf("record %s step %d photo %s has negative dimensions", ref, step.Index, photo.ID))
				}
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// computeStats counts the activity side of ExportStats
func computeStats(records []types.ActivityRecord) types.ExportStats {
	var s types.ExportStats
	s.TotalLogs = len(records)
	for i := range records {
		switch records[i].Status {
		case types.ActivityStatusCompleted:
			s.CompletedLogs++
		case types.ActivityStatusFailed:
			s.FailedLogs++
		}
		s.TotalSteps += len(records[i].Steps)
		s.TotalPhotos += records[i].PhotoCount()
	}
	return s
}
