package spreadsheet

import (
	"strings"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
)

const (
	ColDeptCode         = "dept_code"
	ColName             = "name"
	ColParentDeptCode   = "parent_dept_code"
	ColDescription      = "description"
	ColMetadata         = "metadata"
	ColPosCode          = "pos_code"
	ColTitle            = "title"
	ColReportsToPosCode = "reports_to_pos_code"
	ColIsManager        = "is_manager"
	ColIncumbentsCount  = "incumbents_count"
)

type sheetSchema struct {
	canonical string
	aliases   []string
	required  []string
	optional  []string
}

func (s sheetSchema) columns() []string {
	out := make([]string, 0, len(s.required)+len(s.optional))
	out = append(out, s.required...)
	return append(out, s.optional...)
}

func (s sheetSchema) matches(sheetName string) bool {
	name := strings.ToLower(strings.Join(strings.Fields(sheetName), " "))
	for _, alias := range s.aliases {
		if name == alias {
			return true
		}
	}
	return false
}

var (
	departmentSchema = sheetSchema{
		canonical: issue.SheetDepartments,
		aliases:   []string{"departments", "department", "depts", "dept", "org units"},
		required:  []string{ColDeptCode, ColName},
		optional:  []string{ColParentDeptCode, ColDescription, ColMetadata},
	}
	positionSchema = sheetSchema{
		canonical: issue.SheetPositions,
		aliases:   []string{"positions", "position", "roles", "posts"},
		required:  []string{ColPosCode, ColTitle, ColDeptCode},
		optional:  []string{ColReportsToPosCode, ColIsManager, ColIncumbentsCount},
	}
)

// DepartmentColumns is the header row the extractor expects on the departments sheet.
func DepartmentColumns() []string { return departmentSchema.columns() }

// PositionColumns is the header row the extractor expects on the positions sheet.
func PositionColumns() []string { return positionSchema.columns() }
