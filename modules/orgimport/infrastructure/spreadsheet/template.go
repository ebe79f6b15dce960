package spreadsheet

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
)

const instructionsSheet = "Instructions"

type TemplateOptions struct {
	IncludeExamples bool
}

var (
	exampleDepartments = [][]any{
		{"HQ", "Head Office", "-", "Company headquarters", `{"cost_center":"CC-000"}`},
		{"ENG", "Engineering", "HQ", "", ""},
		{"ENG-PLT", "Platform", "ENG", "Core platform team", ""},
	}
	examplePositions = [][]any{
		{"CEO", "Chief Executive Officer", "HQ", "-", true, 1},
		{"CTO", "Chief Technology Officer", "ENG", "CEO", true, 1},
		{"PLT-ENG", "Platform Engineer", "ENG-PLT", "CTO", false, 4},
	}
	instructions = []string{
		"Fill the Departments sheet first, then the Positions sheet.",
		"Do not rename or reorder the header row. Extra columns are ignored.",
		"dept_code and pos_code must be unique within the file.",
		"Leave parent_dept_code empty or type - for a top-level department.",
		"parent_dept_code and reports_to_pos_code may point to rows in this file or to codes that already exist.",
		"is_manager accepts true/false or 1/0. incumbents_count is a whole number.",
		"metadata, when present, must be a JSON object such as {\"cost_center\":\"CC-01\"}.",
	}
)

// Template renders an empty import workbook with the exact headers the extractor expects.
func Template(opts TemplateOptions) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	if err := f.SetSheetName("Sheet1", issue.SheetDepartments); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(issue.SheetPositions); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(instructionsSheet); err != nil {
		return nil, err
	}

	var deptRows, posRows [][]any
	if opts.IncludeExamples {
		deptRows, posRows = exampleDepartments, examplePositions
	}
	if err := writeSheet(f, issue.SheetDepartments, DepartmentColumns(), deptRows, bold); err != nil {
		return nil, err
	}
	if err := writeSheet(f, issue.SheetPositions, PositionColumns(), posRows, bold); err != nil {
		return nil, err
	}
	for i, line := range instructions {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(instructionsSheet, cell, line); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(instructionsSheet, "A", "A", 100); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write template: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, style int) error {
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return err
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
