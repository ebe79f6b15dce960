package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/iota-uz/org-import/modules/orgimport/infrastructure/spreadsheet"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

const (
	CodeInvalidFile     = "ORG_IMPORT_INVALID_FILE"
	CodeMissingSheet    = "ORG_IMPORT_MISSING_SHEET"
	CodeMissingColumns  = "ORG_IMPORT_MISSING_COLUMNS"
	CodeNoData          = "ORG_IMPORT_NO_DATA"
	CodeTooManyRows     = "ORG_IMPORT_TOO_MANY_ROWS"
	CodeValidation      = "ORG_IMPORT_VALIDATION_FAILED"
	CodeStore           = "ORG_IMPORT_STORE_UNAVAILABLE"
	CodeWriteFailed     = "ORG_IMPORT_WRITE_FAILED"
	CodeUnauthenticated = "ORG_IMPORT_UNAUTHENTICATED"
	CodeCanceled        = "ORG_IMPORT_CANCELED"
)

// extractionError maps structural workbook failures to service errors.
func extractionError(err error) *ServiceError {
	var (
		malformed *spreadsheet.MalformedFileError
		sheet     *spreadsheet.MissingSheetError
		columns   *spreadsheet.MissingColumnsError
		noData    *spreadsheet.NoDataError
		tooMany   *spreadsheet.TooManyRowsError
	)
	switch {
	case errors.As(err, &malformed):
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidFile, "file is not a readable xlsx workbook", err)
	case errors.As(err, &sheet):
		return newServiceError(http.StatusUnprocessableEntity, CodeMissingSheet, "workbook has no Departments or Positions sheet", err)
	case errors.As(err, &columns):
		return newServiceError(http.StatusUnprocessableEntity, CodeMissingColumns, "required columns are missing", err)
	case errors.As(err, &noData):
		return newServiceError(http.StatusUnprocessableEntity, CodeNoData, "workbook contains no data rows", err)
	case errors.As(err, &tooMany):
		return newServiceError(http.StatusRequestEntityTooLarge, CodeTooManyRows, "too many rows", err)
	default:
		return newServiceError(http.StatusUnprocessableEntity, CodeInvalidFile, "workbook could not be read", err)
	}
}
