// Package issue defines row-level validation findings. Findings are values:
// they are collected for the whole batch and never returned as Go errors.
package issue

import (
	"fmt"
	"slices"
	"strings"
)

const (
	SheetDepartments = "Departments"
	SheetPositions   = "Positions"
)

type Type string

const (
	MissingRequired        Type = "missing_required"
	InvalidValue           Type = "invalid_value"
	InvalidMetadata        Type = "invalid_metadata"
	DuplicateKey           Type = "duplicate_key"
	AlreadyExists          Type = "already_exists"
	AcceptedDuplicate      Type = "accepted_duplicate"
	BrokenReference        Type = "broken_reference"
	CircularReference      Type = "circular_reference"
	MultipleRoots          Type = "multiple_roots"
	NoRoot                 Type = "no_root"
	MissingOptional        Type = "missing_optional"
	UnresolvableDependency Type = "unresolvable_dependency"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// DefaultSeverity is the fixed severity policy per finding type.
func DefaultSeverity(t Type) Severity {
	switch t {
	case MissingOptional, MultipleRoots, AcceptedDuplicate:
		return SeverityWarning
	default:
		return SeverityError
	}
}

type ValidationError struct {
	Type          Type     `json:"type"`
	Severity      Severity `json:"severity"`
	Sheet         string   `json:"sheet"`
	Row           int      `json:"row,omitempty"`
	Column        string   `json:"column,omitempty"`
	Message       string   `json:"message"`
	Suggestion    string   `json:"suggestion,omitempty"`
	AffectedCodes []string `json:"affected_codes,omitempty"`
}

// New builds a finding with the default severity for its type.
func New(t Type, sheet string, row int, column, message string) ValidationError {
	return ValidationError{
		Type:     t,
		Severity: DefaultSeverity(t),
		Sheet:    sheet,
		Row:      row,
		Column:   column,
		Message:  message,
	}
}

func (e ValidationError) WithSuggestion(s string) ValidationError {
	e.Suggestion = s
	return e
}

func (e ValidationError) WithCodes(codes ...string) ValidationError {
	e.AffectedCodes = slices.Clone(codes)
	return e
}

func (e ValidationError) IsBlocking() bool { return e.Severity == SeverityError }

func (e ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Sheet)
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %s", e.Column)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	return b.String()
}

type List []ValidationError

func (l List) HasBlocking() bool {
	return slices.ContainsFunc(l, ValidationError.IsBlocking)
}

func (l List) Count(sev Severity) int {
	n := 0
	for _, e := range l {
		if e.Severity == sev {
			n++
		}
	}
	return n
}

func (l List) OfType(t Type) List {
	var out List
	for _, e := range l {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Sorted orders findings for display: departments before positions, then row, column, type.
// The receiver is not modified.
func (l List) Sorted() List {
	out := slices.Clone(l)
	slices.SortStableFunc(out, func(a, b ValidationError) int {
		if c := sheetRank(a.Sheet) - sheetRank(b.Sheet); c != 0 {
			return c
		}
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		if c := strings.Compare(a.Column, b.Column); c != 0 {
			return c
		}
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out
}

func sheetRank(sheet string) int {
	switch sheet {
	case SheetDepartments:
		return 0
	case SheetPositions:
		return 1
	default:
		return 2
	}
}
