package main

import (
	"errors"
	"net/http"

	"github.com/iota-uz/org-import/modules/orgimport/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// serviceExit maps an import service failure onto the process exit code.
func serviceExit(err error) error {
	var svcErr *services.ServiceError
	if !errors.As(err, &svcErr) {
		return withCode(1, err)
	}
	switch {
	case svcErr.Code == services.CodeStore:
		return withCode(exitDB, err)
	case svcErr.Code == services.CodeWriteFailed, svcErr.Code == services.CodeCanceled:
		return withCode(exitDBWrite, err)
	case svcErr.Status == http.StatusUnauthorized:
		return withCode(exitUsage, err)
	case svcErr.Status >= 400 && svcErr.Status < 500:
		return withCode(exitValidation, err)
	default:
		return withCode(1, err)
	}
}
