package spreadsheet

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
)

const (
	DefaultMaxRowsPerSheet = 10000

	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	zipMIME  = "application/zip"
)

type Options struct {
	MaxRowsPerSheet int
}

type Extractor struct {
	maxRows int
}

func NewExtractor(opts Options) *Extractor {
	maxRows := opts.MaxRowsPerSheet
	if maxRows <= 0 {
		maxRows = DefaultMaxRowsPerSheet
	}
	return &Extractor{maxRows: maxRows}
}

// Extraction is the typed content of a workbook. Issues holds per-cell coercion
// findings; they do not stop extraction.
type Extraction struct {
	Departments []orgrow.Department `json:"departments"`
	Positions   []orgrow.Position   `json:"positions"`
	Issues      issue.List          `json:"issues"`
}

func (x *Extraction) RowCount() int {
	return len(x.Departments) + len(x.Positions)
}

// DetectFormat rejects payloads that are not zip containers (xlsx is a zip package).
func DetectFormat(payload []byte) error {
	if len(payload) == 0 {
		return &MalformedFileError{Reason: "empty payload"}
	}
	detected := mimetype.Detect(payload)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(xlsxMIME) || m.Is(zipMIME) {
			return nil
		}
	}
	return &MalformedFileError{Reason: fmt.Sprintf("unsupported content type %s", detected.String())}
}

func (e *Extractor) Extract(payload []byte) (*Extraction, error) {
	if err := DetectFormat(payload); err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &MalformedFileError{Reason: "cannot open workbook", Cause: err}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	deptSheet, hasDept := findSheet(sheets, departmentSchema)
	posSheet, hasPos := findSheet(sheets, positionSchema)
	if !hasDept && !hasPos {
		return nil, &MissingSheetError{
			Missing: []string{departmentSchema.canonical, positionSchema.canonical},
			Found:   sheets,
		}
	}

	out := &Extraction{}
	var empty []string
	if hasDept {
		tbl, err := e.readTable(f, deptSheet, departmentSchema)
		if err != nil {
			return nil, err
		}
		if len(tbl.rows) == 0 {
			empty = append(empty, deptSheet)
		}
		for _, r := range tbl.rows {
			out.Departments = append(out.Departments, departmentFromRow(r, &out.Issues))
		}
	}
	if hasPos {
		tbl, err := e.readTable(f, posSheet, positionSchema)
		if err != nil {
			return nil, err
		}
		if len(tbl.rows) == 0 {
			empty = append(empty, posSheet)
		}
		for _, r := range tbl.rows {
			out.Positions = append(out.Positions, positionFromRow(r, &out.Issues))
		}
	}
	if out.RowCount() == 0 {
		return nil, &NoDataError{Sheets: empty}
	}
	return out, nil
}

func findSheet(sheets []string, schema sheetSchema) (string, bool) {
	for _, name := range sheets {
		if schema.matches(name) {
			return name, true
		}
	}
	return "", false
}

type table struct {
	sheet string
	rows  []tableRow
}

type tableRow struct {
	line  int
	sheet string
	get   func(col string) string
}

func (e *Extractor) readTable(f *excelize.File, sheet string, schema sheetSchema) (*table, error) {
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &MalformedFileError{Reason: fmt.Sprintf("cannot read sheet %q", sheet), Cause: err}
	}
	tbl := &table{sheet: schema.canonical}
	if len(raw) == 0 || isBlank(raw[0]) {
		return tbl, nil
	}

	index := make(map[string]int, len(raw[0]))
	for i, h := range raw[0] {
		name := normalizeHeader(h)
		if _, seen := index[name]; !seen && name != "" {
			index[name] = i
		}
	}
	var missing []string
	for _, col := range schema.required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Sheet: schema.canonical, Missing: missing}
	}

	// Sheet row numbers are 1-based and the header occupies row 1.
	for i := 1; i < len(raw); i++ {
		cells := raw[i]
		if isBlank(cells) {
			continue
		}
		tbl.rows = append(tbl.rows, tableRow{
			line:  i + 1,
			sheet: schema.canonical,
			get: func(col string) string {
				idx, ok := index[col]
				if !ok || idx >= len(cells) {
					return ""
				}
				return strings.TrimSpace(cells[idx])
			},
		})
	}
	if len(tbl.rows) > e.maxRows {
		return nil, &TooManyRowsError{Sheet: schema.canonical, Rows: len(tbl.rows), Limit: e.maxRows}
	}
	return tbl, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func departmentFromRow(r tableRow, issues *issue.List) orgrow.Department {
	d := orgrow.Department{
		DeptCode:       r.get(ColDeptCode),
		Name:           r.get(ColName),
		ParentDeptCode: optionalString(r.get(ColParentDeptCode)),
		Description:    optionalString(r.get(ColDescription)),
		SourceRow:      r.line,
	}
	raw := r.get(ColMetadata)
	meta, outcome := parseMetadata(raw)
	switch outcome {
	case metadataParsed, metadataPlainText:
		d.Metadata = meta
	case metadataInvalid:
		*issues = append(*issues, issue.New(issue.InvalidMetadata, r.sheet, r.line, ColMetadata,
			"metadata is not a valid JSON object").
			WithSuggestion(`use a JSON object such as {"cost_center":"CC-01"}`).
			WithCodes(d.DeptCode))
	}
	if outcome == metadataPlainText {
		*issues = append(*issues, issue.New(issue.MissingOptional, r.sheet, r.line, ColMetadata,
			"metadata is plain text and was stored under the \"text\" key").
			WithCodes(d.DeptCode))
	}
	return d
}

func positionFromRow(r tableRow, issues *issue.List) orgrow.Position {
	p := orgrow.Position{
		PosCode:          r.get(ColPosCode),
		Title:            r.get(ColTitle),
		DeptCode:         r.get(ColDeptCode),
		ReportsToPosCode: optionalString(r.get(ColReportsToPosCode)),
		SourceRow:        r.line,
	}
	if raw := r.get(ColIsManager); raw != "" {
		v, ok := parseBool(raw)
		if !ok {
			*issues = append(*issues, issue.New(issue.InvalidValue, r.sheet, r.line, ColIsManager,
				fmt.Sprintf("%q is not a boolean", raw)).
				WithSuggestion("use true/false or 1/0").
				WithCodes(p.PosCode))
		}
		p.IsManager = v
	}
	if raw := r.get(ColIncumbentsCount); raw != "" {
		n, ok := parseCount(raw)
		if !ok {
			*issues = append(*issues, issue.New(issue.InvalidValue, r.sheet, r.line, ColIncumbentsCount,
				fmt.Sprintf("%q is not a non-negative whole number", raw)).
				WithCodes(p.PosCode))
		}
		p.IncumbentsCount = n
	}
	return p
}
