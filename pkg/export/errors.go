package export

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExportInProgress is matched by errors.Is when a run for the same
// tenant and date is already executing
var ErrExportInProgress = errors.New("export already in progress")

// InProgressError is returned by a rejected single-flight trigger
type InProgressError struct {
	TenantID   string
	ReportDate string
}

func (e *InProgressError) Error() string {
	return fmt.Sprintf("export for tenant %s on %s is already in progress", e.TenantID, e.ReportDate)
}

func (e *InProgressError) Unwrap() error {
	return ErrExportInProgress
}

// ValidationError lists every problem found in the input records
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid export input: " + strings.Join(e.Problems, "; ")
}

// Stage names the part of a run that failed
type Stage string

const (
	StageValidation Stage = "validation"
	StageGeneration Stage = "generation"
	StageStorage    Stage = "storage"
)

// StageError wraps the error that failed a run with its stage
type StageError struct {
	Stage    Stage
	ExportID string
	Err      error
}

func (e *StageError) Error() string {
	if e.ExportID == "" {
		return fmt.Sprintf("export failed during %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("export %s failed during %s: %v", e.ExportID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
