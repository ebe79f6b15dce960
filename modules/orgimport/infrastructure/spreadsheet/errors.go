package spreadsheet

import (
	"fmt"
	"strings"
)

// MalformedFileError means the payload could not be opened as a workbook at all.
type MalformedFileError struct {
	Reason string
	Cause  error
}

func (e *MalformedFileError) Error() string {
	if e.Cause == nil {
		return "malformed workbook: " + e.Reason
	}
	return fmt.Sprintf("malformed workbook: %s: %v", e.Reason, e.Cause)
}

func (e *MalformedFileError) Unwrap() error { return e.Cause }

type MissingSheetError struct {
	Missing []string
	Found   []string
}

func (e *MissingSheetError) Error() string {
	return fmt.Sprintf("missing sheets %s (found: %s)", strings.Join(e.Missing, ", "), strings.Join(e.Found, ", "))
}

type MissingColumnsError struct {
	Sheet   string
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Sheet, strings.Join(e.Missing, ", "))
}

type NoDataError struct {
	Sheets []string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no data rows found in %s", strings.Join(e.Sheets, ", "))
}

type TooManyRowsError struct {
	Sheet string
	Rows  int
	Limit int
}

func (e *TooManyRowsError) Error() string {
	return fmt.Sprintf("%s: %d data rows exceeds the limit of %d", e.Sheet, e.Rows, e.Limit)
}
