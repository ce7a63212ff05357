package importer

import (
	"fmt"
)

type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeApply  Mode = "apply"
)

func (m Mode) Valid() bool {
	return m == ModeDryRun || m == ModeApply
}

const (
	CodeEmptyFile        = "empty_file"
	CodeMissingColumns   = "missing_columns"
	CodeRowLimitExceeded = "row_limit_exceeded"
)

// StructuralError aborts a whole import before any row is processed.
type StructuralError struct {
	Code    string
	Message string
	Details any
	Err     error
}

func (e *StructuralError) Error() string {
	return e.Message
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

type RowError struct {
	// Row is the 1-based data row; the header is not counted.
	Row int `json:"row"`
	// Line is the 1-based line in the file where the row starts.
	Line     int    `json:"line"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	RawValue string `json:"rawValue,omitempty"`
}

func (e RowError) String() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d (%s): %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

type Outcome struct {
	Entity       string     `json:"entity"`
	Mode         Mode       `json:"mode"`
	RowsTotal    int        `json:"rowsTotal"`
	SuccessCount int        `json:"successCount"`
	ErrorCount   int        `json:"errorCount"`
	Errors       []RowError `json:"errors"`
}

func (o *Outcome) recordError(rowErr RowError) {
	o.ErrorCount++
	o.Errors = append(o.Errors, rowErr)
}
