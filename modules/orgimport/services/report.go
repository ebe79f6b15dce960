package services

import (
	"github.com/google/uuid"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
	"github.com/iota-uz/org-import/modules/orgimport/services/duplicates"
	"github.com/iota-uz/org-import/modules/orgimport/services/hierarchy"
)

// Report is the dry-run outcome of a workbook: rows after duplicate handling,
// every finding, and the creation order that would be used.
type Report struct {
	RunID       uuid.UUID           `json:"run_id"`
	Departments []orgrow.Department `json:"departments"`
	Positions   []orgrow.Position   `json:"positions"`
	Issues      issue.List          `json:"issues"`

	DepartmentDuplicates  duplicates.Detection[orgrow.Department]    `json:"department_duplicates"`
	PositionDuplicates    duplicates.Detection[orgrow.Position]      `json:"position_duplicates"`
	DepartmentResolutions []duplicates.Resolution[orgrow.Department] `json:"department_resolutions,omitempty"`
	PositionResolutions   []duplicates.Resolution[orgrow.Position]   `json:"position_resolutions,omitempty"`

	DepartmentPlan hierarchy.WavePlan        `json:"department_plan"`
	PositionPlan   hierarchy.WavePlan        `json:"position_plan"`
	Hierarchy      []hierarchy.HierarchyNode `json:"hierarchy"`
	Forest         hierarchy.Forest          `json:"forest"`

	Summary Summary `json:"summary"`

	existingDepartments map[string]uuid.UUID
	existingPositions   map[string]uuid.UUID
}

type Summary struct {
	Departments     int  `json:"departments"`
	Positions       int  `json:"positions"`
	Errors          int  `json:"errors"`
	Warnings        int  `json:"warnings"`
	DepartmentWaves int  `json:"department_waves"`
	PositionWaves   int  `json:"position_waves"`
	Blocking        bool `json:"blocking"`
}

func (r *Report) Blocking() bool { return r.Issues.HasBlocking() }

func (r *Report) summarize() {
	r.Summary = Summary{
		Departments:     len(r.Departments),
		Positions:       len(r.Positions),
		Errors:          r.Issues.Count(issue.SeverityError),
		Warnings:        r.Issues.Count(issue.SeverityWarning),
		DepartmentWaves: len(r.DepartmentPlan.Waves),
		PositionWaves:   len(r.PositionPlan.Waves),
		Blocking:        r.Issues.HasBlocking(),
	}
}

type Created struct {
	Code string    `json:"code"`
	ID   uuid.UUID `json:"id"`
	Wave int       `json:"wave"`
}

type Result struct {
	Report      *Report    `json:"report"`
	Departments []Created  `json:"departments"`
	Positions   []Created  `json:"positions"`
	Skipped     issue.List `json:"skipped,omitempty"`
	DryRun      bool       `json:"dry_run"`
}

func departmentNodes(rows []orgrow.Department) []hierarchy.Node {
	out := make([]hierarchy.Node, 0, len(rows))
	for _, d := range rows {
		out = append(out, hierarchy.Node{
			ID:        d.DeptCode,
			ParentID:  orgrow.ParentCode(d.ParentDeptCode),
			Name:      d.Name,
			SourceRow: d.SourceRow,
		})
	}
	return out
}

func positionNodes(rows []orgrow.Position) []hierarchy.Node {
	out := make([]hierarchy.Node, 0, len(rows))
	for _, p := range rows {
		out = append(out, hierarchy.Node{
			ID:        p.PosCode,
			ParentID:  orgrow.ParentCode(p.ReportsToPosCode),
			Name:      p.Title,
			SourceRow: p.SourceRow,
		})
	}
	return out
}

func hasCode(m map[string]uuid.UUID) func(string) bool {
	return func(code string) bool {
		_, ok := m[code]
		return ok
	}
}
