package validation

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
)

func strPtr(s string) *string { return &s }

func dept(row int, code, name, parent string) orgrow.Department {
	d := orgrow.Department{DeptCode: code, Name: name, SourceRow: row}
	if parent != "" {
		d.ParentDeptCode = strPtr(parent)
	}
	return d
}

func pos(row int, code, title, deptCode, reportsTo string, manager bool) orgrow.Position {
	p := orgrow.Position{PosCode: code, Title: title, DeptCode: deptCode, IsManager: manager, SourceRow: row}
	if reportsTo != "" {
		p.ReportsToPosCode = strPtr(reportsTo)
	}
	return p
}

func TestValidateDepartments_TwoNodeCycle(t *testing.T) {
	rows := []orgrow.Department{
		dept(2, "X", "X dept", "Y"),
		dept(3, "Y", "Y dept", "X"),
	}

	found := New().ValidateDepartments(rows, nil, Options{})

	cycles := found.OfType(issue.CircularReference)
	require.Len(t, cycles, 2)
	for _, c := range cycles {
		require.Equal(t, []string{"X", "Y"}, c.AffectedCodes)
		require.Equal(t, issue.SeverityError, c.Severity)
		require.Contains(t, c.Message, "X → Y → X")
	}
	require.Equal(t, 2, cycles[0].Row)
	require.Equal(t, 3, cycles[1].Row)
	require.Len(t, found.OfType(issue.NoRoot), 1)
}

func TestValidateDepartments_CycleWithTailAndSelfLoop(t *testing.T) {
	rows := []orgrow.Department{
		dept(2, "ROOT", "Root", "-"),
		dept(3, "TAIL", "Tail", "A"),
		dept(4, "A", "A", "B"),
		dept(5, "B", "B", "C"),
		dept(6, "C", "C", "A"),
		dept(7, "SELF", "Self", "SELF"),
	}

	cycles := New().ValidateDepartments(rows, nil, Options{}).OfType(issue.CircularReference)

	require.Len(t, cycles, 4)
	for _, c := range cycles[:3] {
		require.Equal(t, []string{"A", "B", "C"}, c.AffectedCodes)
	}
	require.Equal(t, []string{"SELF"}, cycles[3].AffectedCodes)
	require.Contains(t, cycles[3].Message, "SELF → SELF")
}

func TestValidateDepartments_RootShape(t *testing.T) {
	v := New()

	multi := v.ValidateDepartments([]orgrow.Department{
		dept(2, "A", "A", ""),
		dept(3, "B", "B", "-"),
		dept(4, "C", "C", "A"),
	}, nil, Options{})
	roots := multi.OfType(issue.MultipleRoots)
	require.Len(t, roots, 1)
	require.Equal(t, issue.SeverityWarning, roots[0].Severity)
	require.Equal(t, []string{"A", "B"}, roots[0].AffectedCodes)
	require.False(t, multi.HasBlocking())

	single := v.ValidateDepartments([]orgrow.Department{dept(2, "A", "A", "")}, nil, Options{})
	require.Empty(t, single)

	anchored := v.ValidateDepartments([]orgrow.Department{
		dept(2, "SUB1", "Sub 1", "EXISTING"),
		dept(3, "SUB2", "Sub 2", "SUB1"),
	}, NewCodeSet("EXISTING"), Options{})
	require.Empty(t, anchored)
}

func TestValidateDepartments_DanglingParentDoesNotAnchor(t *testing.T) {
	rows := []orgrow.Department{
		dept(2, "X", "X", "Y"),
		dept(3, "Y", "Y", "X"),
		dept(4, "Z", "Z", "GHOST"),
	}

	found := New().ValidateDepartments(rows, nil, Options{})

	require.Len(t, found.OfType(issue.NoRoot), 1)
	require.Len(t, found.OfType(issue.BrokenReference), 1)
	require.Len(t, found.OfType(issue.CircularReference), 2)

	stored := New().ValidateDepartments(rows, NewCodeSet("GHOST"), Options{})
	require.Empty(t, stored.OfType(issue.NoRoot))
	require.Empty(t, stored.OfType(issue.BrokenReference))
}

func TestValidateDepartments_StableAcrossRunsAndRowOrder(t *testing.T) {
	rows := []orgrow.Department{
		dept(2, "ROOT", "Root", "-"),
		dept(3, "A", "A", "B"),
		dept(4, "B", "B", "C"),
		dept(5, "C", "C", "A"),
		dept(6, "", "No code", "ROOT"),
		dept(7, "D", "", "E"),
		dept(8, "E", "E", "D"),
		dept(9, "SELF", "Self", "SELF"),
	}
	permuted := slices.Clone(rows)
	slices.Reverse(permuted)
	permuted[0], permuted[3] = permuted[3], permuted[0]

	v := New()
	cycles := func(list issue.List) []string {
		var out []string
		for _, e := range list.OfType(issue.CircularReference) {
			codes := slices.Clone(e.AffectedCodes)
			slices.Sort(codes)
			out = append(out, fmt.Sprintf("%d:%s", e.Row, strings.Join(codes, ",")))
		}
		return out
	}
	required := func(list issue.List) []string {
		var out []string
		for _, e := range list.OfType(issue.MissingRequired) {
			out = append(out, fmt.Sprintf("%d:%s:%s", e.Row, e.Column, e.Message))
		}
		return out
	}

	first := v.ValidateDepartments(rows, nil, Options{})
	second := v.ValidateDepartments(rows, nil, Options{})
	reordered := v.ValidateDepartments(permuted, nil, Options{})

	require.Equal(t, first, second)
	require.Len(t, cycles(first), 6)
	require.ElementsMatch(t, cycles(first), cycles(reordered))
	require.Len(t, required(first), 2)
	require.ElementsMatch(t, required(first), required(reordered))
}

func TestValidate_RowsAlreadyStored(t *testing.T) {
	v := New()

	departments := v.ValidateDepartments([]orgrow.Department{
		dept(2, "HQ", "Head Office", ""),
		dept(3, "ENG", "Engineering", "HQ"),
	}, NewCodeSet("ENG"), Options{})
	exists := departments.OfType(issue.AlreadyExists)
	require.Len(t, exists, 1)
	require.Equal(t, 3, exists[0].Row)
	require.Equal(t, "dept_code", exists[0].Column)
	require.Equal(t, []string{"ENG"}, exists[0].AffectedCodes)
	require.Equal(t, issue.SeverityError, exists[0].Severity)
	require.True(t, departments.HasBlocking())

	positions := v.ValidatePositions([]orgrow.Position{
		pos(2, "CEO", "Chief", "HQ", "", true),
	}, nil, NewCodeSet("HQ"), NewCodeSet("CEO"), Options{})
	exists = positions.OfType(issue.AlreadyExists)
	require.Len(t, exists, 1)
	require.Equal(t, "pos_code", exists[0].Column)
}

func TestValidateDepartments_RequiredAndLength(t *testing.T) {
	rows := []orgrow.Department{
		dept(2, "", "No code", ""),
		dept(3, "NONAME", "", "-"),
		dept(4, strings.Repeat("X", 65), "Long", "-"),
	}

	found := New().ValidateDepartments(rows, nil, Options{})

	missing := found.OfType(issue.MissingRequired)
	require.Len(t, missing, 2)
	require.Equal(t, "dept_code", missing[0].Column)
	require.Equal(t, 2, missing[0].Row)
	require.Equal(t, "name", missing[1].Column)
	require.Equal(t, []string{"NONAME"}, missing[1].AffectedCodes)

	invalid := found.OfType(issue.InvalidValue)
	require.Len(t, invalid, 1)
	require.Equal(t, 4, invalid[0].Row)
}

func TestValidateDepartments_DuplicatesPerOccurrence(t *testing.T) {
	rows := []orgrow.Department{
		dept(2, "HQ", "Head Office", ""),
		dept(3, "ENG", "Engineering", "HQ"),
		dept(4, "ENG", "Engineering", "HQ"),
		dept(5, "ENG", "Eng", ""),
	}
	v := New()

	dups := v.ValidateDepartments(rows, nil, Options{}).OfType(issue.DuplicateKey)
	require.Len(t, dups, 3)
	require.Equal(t, []int{3, 4, 5}, []int{dups[0].Row, dups[1].Row, dups[2].Row})
	require.Contains(t, dups[0].Message, "rows 3, 4, 5")

	accepted := v.ValidateDepartments(rows, nil, Options{AcceptedDuplicates: NewCodeSet("ENG")})
	require.Empty(t, accepted.OfType(issue.DuplicateKey))
	require.Len(t, accepted.OfType(issue.AcceptedDuplicate), 3)
}

func TestValidateDepartments_References(t *testing.T) {
	rows := []orgrow.Department{
		dept(2, "HQ", "Head Office", "-"),
		dept(3, "ENG", "Engineering", "HQ"),
		dept(4, "OPS", "Operations", "LEGACY"),
		dept(5, "FIN", "Finance", "MISSING"),
	}

	broken := New().ValidateDepartments(rows, NewCodeSet("LEGACY"), Options{}).OfType(issue.BrokenReference)

	require.Len(t, broken, 1)
	require.Equal(t, 5, broken[0].Row)
	require.Equal(t, []string{"FIN", "MISSING"}, broken[0].AffectedCodes)
}

func TestValidatePositions(t *testing.T) {
	departments := []orgrow.Department{dept(2, "HQ", "Head Office", "")}
	rows := []orgrow.Position{
		pos(2, "CEO", "Chief", "HQ", "", true),
		pos(3, "DEV", "Developer", "ENG", "CEO", false),
		pos(4, "QA", "Tester", "LEGACY", "GHOST", false),
		pos(5, "TEMP", "Temp", "-", "", false),
		pos(6, "A", "A", "HQ", "B", false),
		pos(7, "B", "B", "HQ", "A", false),
	}

	found := New().ValidatePositions(rows, departments, NewCodeSet("LEGACY"), NewCodeSet(), Options{})

	broken := found.OfType(issue.BrokenReference)
	require.Len(t, broken, 3)
	require.Equal(t, "dept_code", broken[0].Column)
	require.Equal(t, 3, broken[0].Row)
	require.Equal(t, "reports_to_pos_code", broken[1].Column)
	require.Equal(t, 4, broken[1].Row)
	require.Equal(t, 5, broken[2].Row)

	optional := found.OfType(issue.MissingOptional)
	require.Len(t, optional, 1)
	require.Equal(t, 5, optional[0].Row)

	cycles := found.OfType(issue.CircularReference)
	require.Len(t, cycles, 2)
	require.Equal(t, []string{"A", "B"}, cycles[0].AffectedCodes)
	require.Empty(t, found.OfType(issue.NoRoot), "root shape applies to departments only")
}

func TestValidatePositions_NegativeIncumbents(t *testing.T) {
	p := pos(2, "P", "P", "HQ", "", true)
	p.IncumbentsCount = -1

	found := New().ValidatePositions([]orgrow.Position{p}, nil, NewCodeSet("HQ"), nil, Options{})

	invalid := found.OfType(issue.InvalidValue)
	require.Len(t, invalid, 1)
	require.Equal(t, "incumbents_count", invalid[0].Column)
}
