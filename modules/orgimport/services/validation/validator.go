// Package validation checks a parsed batch for structural and referential integrity.
// Every pass scans the whole batch and returns findings instead of failing fast.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
)

type CodeSet map[string]struct{}

func NewCodeSet(codes ...string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

func (s CodeSet) Add(code string) {
	if code = strings.TrimSpace(code); code != "" {
		s[code] = struct{}{}
	}
}

func (s CodeSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

type Options struct {
	// AcceptedDuplicates lists business keys the caller chose to keep as duplicates.
	// Their occurrences are reported as warnings.
	AcceptedDuplicates CodeSet
}

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("col")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

func (v *Validator) ValidateDepartments(rows []orgrow.Department, existing CodeSet, opts Options) issue.List {
	var out issue.List
	for _, r := range rows {
		out = append(out, v.fieldPass(issue.SheetDepartments, r.SourceRow, r.DeptCode, r)...)
	}
	out = append(out, duplicatePass(issue.SheetDepartments, "dept_code", rows, opts.AcceptedDuplicates)...)
	out = append(out, existingPass(issue.SheetDepartments, "dept_code", rows, existing)...)

	batch := NewCodeSet()
	links := make([]link, 0, len(rows))
	for _, r := range rows {
		batch.Add(r.DeptCode)
		links = append(links, link{code: r.DeptCode, parent: orgrow.ParentCode(r.ParentDeptCode), row: r.SourceRow})
	}
	for _, r := range rows {
		parent := orgrow.ParentCode(r.ParentDeptCode)
		if parent == "" || batch.Has(parent) || existing.Has(parent) {
			continue
		}
		out = append(out, issue.New(issue.BrokenReference, issue.SheetDepartments, r.SourceRow, "parent_dept_code",
			fmt.Sprintf("parent department %q does not exist in the file or in the system", parent)).
			WithSuggestion(fmt.Sprintf("add a row for %q, fix the code, or leave the cell empty for a top-level department", parent)).
			WithCodes(r.DeptCode, parent))
	}

	out = append(out, cyclePass(issue.SheetDepartments, "parent_dept_code", links)...)
	out = append(out, shapePass(links, batch, existing)...)
	return out
}

func (v *Validator) ValidatePositions(
	rows []orgrow.Position,
	departments []orgrow.Department,
	existingDepartments, existingPositions CodeSet,
	opts Options,
) issue.List {
	var out issue.List
	for _, r := range rows {
		out = append(out, v.fieldPass(issue.SheetPositions, r.SourceRow, r.PosCode, r)...)
		if !r.IsManager && orgrow.IsNoParent(r.ReportsToPosCode) {
			out = append(out, issue.New(issue.MissingOptional, issue.SheetPositions, r.SourceRow, "reports_to_pos_code",
				"non-manager position has no reporting line").
				WithSuggestion("set reports_to_pos_code or mark the position as a manager").
				WithCodes(r.PosCode))
		}
	}
	out = append(out, duplicatePass(issue.SheetPositions, "pos_code", rows, opts.AcceptedDuplicates)...)
	out = append(out, existingPass(issue.SheetPositions, "pos_code", rows, existingPositions)...)

	deptBatch := NewCodeSet()
	for _, d := range departments {
		deptBatch.Add(d.DeptCode)
	}
	posBatch := NewCodeSet()
	links := make([]link, 0, len(rows))
	for _, r := range rows {
		posBatch.Add(r.PosCode)
		links = append(links, link{code: r.PosCode, parent: orgrow.ParentCode(r.ReportsToPosCode), row: r.SourceRow})
	}
	for _, r := range rows {
		switch dept := strings.TrimSpace(r.DeptCode); {
		case dept == "":
			// reported by the required pass
		case orgrow.IsNoParentValue(dept):
			out = append(out, issue.New(issue.BrokenReference, issue.SheetPositions, r.SourceRow, "dept_code",
				"a position must belong to a department").
				WithCodes(r.PosCode))
		case !deptBatch.Has(dept) && !existingDepartments.Has(dept):
			out = append(out, issue.New(issue.BrokenReference, issue.SheetPositions, r.SourceRow, "dept_code",
				fmt.Sprintf("department %q does not exist in the file or in the system", dept)).
				WithSuggestion("add the department to the Departments sheet or fix the code").
				WithCodes(r.PosCode, dept))
		}
		manager := orgrow.ParentCode(r.ReportsToPosCode)
		if manager != "" && !posBatch.Has(manager) && !existingPositions.Has(manager) {
			out = append(out, issue.New(issue.BrokenReference, issue.SheetPositions, r.SourceRow, "reports_to_pos_code",
				fmt.Sprintf("position %q does not exist in the file or in the system", manager)).
				WithSuggestion("add the position, fix the code, or leave the cell empty").
				WithCodes(r.PosCode, manager))
		}
	}

	out = append(out, cyclePass(issue.SheetPositions, "reports_to_pos_code", links)...)
	return out
}

func (v *Validator) fieldPass(sheet string, row int, code string, record any) issue.List {
	err := v.validate.Struct(record)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(issue.List, 0, len(verrs))
	for _, fe := range verrs {
		col := fe.Field()
		var e issue.ValidationError
		switch fe.Tag() {
		case "required":
			e = issue.New(issue.MissingRequired, sheet, row, col, col+" is required").
				WithSuggestion("fill the " + col + " cell")
		case "max":
			e = issue.New(issue.InvalidValue, sheet, row, col, fmt.Sprintf("%s is longer than %s characters", col, fe.Param()))
		case "gte":
			e = issue.New(issue.InvalidValue, sheet, row, col, fmt.Sprintf("%s must be at least %s", col, fe.Param()))
		default:
			e = issue.New(issue.InvalidValue, sheet, row, col, fmt.Sprintf("%s failed the %s check", col, fe.Tag()))
		}
		if code != "" {
			e = e.WithCodes(code)
		}
		out = append(out, e)
	}
	return out
}

func duplicatePass[T orgrow.Record[T]](sheet, column string, rows []T, accepted CodeSet) issue.List {
	lines := make(map[string][]int)
	var order []string
	for _, r := range rows {
		key := strings.TrimSpace(r.BusinessKey())
		if key == "" {
			continue
		}
		if _, seen := lines[key]; !seen {
			order = append(order, key)
		}
		lines[key] = append(lines[key], r.SourceLine())
	}

	var out issue.List
	for _, key := range order {
		occ := lines[key]
		if len(occ) < 2 {
			continue
		}
		rowsText := joinInts(occ)
		for _, line := range occ {
			if accepted.Has(key) {
				out = append(out, issue.New(issue.AcceptedDuplicate, sheet, line, column,
					fmt.Sprintf("%s %q is kept as a duplicate (rows %s)", column, key, rowsText)).
					WithCodes(key))
				continue
			}
			out = append(out, issue.New(issue.DuplicateKey, sheet, line, column,
				fmt.Sprintf("%s %q appears %d times (rows %s)", column, key, len(occ), rowsText)).
				WithSuggestion("remove the extra rows or choose a duplicate resolution strategy").
				WithCodes(key))
		}
	}
	return out
}

// existingPass flags rows whose business key is already stored. Imports only
// insert, so such a row would collide with the stored record mid-run.
func existingPass[T orgrow.Record[T]](sheet, column string, rows []T, existing CodeSet) issue.List {
	var out issue.List
	for _, r := range rows {
		key := strings.TrimSpace(r.BusinessKey())
		if key == "" || !existing.Has(key) {
			continue
		}
		out = append(out, issue.New(issue.AlreadyExists, sheet, r.SourceLine(), column,
			fmt.Sprintf("%s %q already exists in the system", column, key)).
			WithSuggestion("remove the row or give it a new code; existing records are not updated by an import").
			WithCodes(key))
	}
	return out
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
