// Package orgrow holds the typed rows produced by the spreadsheet extractor.
package orgrow

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"
)

// NoParentDash is the hyphen marker users type in parent columns to mean "top level".
const NoParentDash = "-"

// IsNoParent reports whether a parent reference is one of the sentinel values
// (absent, empty or a bare hyphen).
func IsNoParent(code *string) bool {
	if code == nil {
		return true
	}
	return IsNoParentValue(*code)
}

func IsNoParentValue(code string) bool {
	v := strings.TrimSpace(code)
	return v == "" || v == NoParentDash
}

// ParentCode returns the referenced code, or "" when the reference is a sentinel.
func ParentCode(code *string) string {
	if IsNoParent(code) {
		return ""
	}
	return strings.TrimSpace(*code)
}

// Field is one named value of a row, rendered as text for scoring and diffing.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Empty bool   `json:"empty"`
}

// Record is implemented by every row type that takes part in duplicate resolution.
type Record[T any] interface {
	BusinessKey() string
	SourceLine() int
	Fields() []Field
	// FillFrom returns a copy with every empty field taken from donor.
	FillFrom(donor T) T
}

type Department struct {
	DeptCode       string         `json:"dept_code" col:"dept_code" validate:"required,max=64"`
	Name           string         `json:"name" col:"name" validate:"required,max=255"`
	ParentDeptCode *string        `json:"parent_dept_code,omitempty" col:"parent_dept_code" validate:"omitempty,max=64"`
	Description    *string        `json:"description,omitempty" col:"description" validate:"omitempty,max=1000"`
	Metadata       map[string]any `json:"metadata,omitempty" col:"metadata"`
	SourceRow      int            `json:"source_row" col:"-"`
}

func (d Department) BusinessKey() string { return d.DeptCode }
func (d Department) SourceLine() int     { return d.SourceRow }

func (d Department) Fields() []Field {
	return []Field{
		textField("dept_code", d.DeptCode),
		textField("name", d.Name),
		optionalField("parent_dept_code", d.ParentDeptCode),
		optionalField("description", d.Description),
		metadataField("metadata", d.Metadata),
	}
}

func (d Department) FillFrom(donor Department) Department {
	out := d
	if out.DeptCode == "" {
		out.DeptCode = donor.DeptCode
	}
	if out.Name == "" {
		out.Name = donor.Name
	}
	if out.ParentDeptCode == nil {
		out.ParentDeptCode = cloneString(donor.ParentDeptCode)
	}
	if out.Description == nil {
		out.Description = cloneString(donor.Description)
	}
	out.Metadata = mergeMetadata(d.Metadata, donor.Metadata)
	return out
}

type Position struct {
	PosCode          string  `json:"pos_code" col:"pos_code" validate:"required,max=64"`
	Title            string  `json:"title" col:"title" validate:"required,max=255"`
	DeptCode         string  `json:"dept_code" col:"dept_code" validate:"required,max=64"`
	ReportsToPosCode *string `json:"reports_to_pos_code,omitempty" col:"reports_to_pos_code" validate:"omitempty,max=64"`
	IsManager        bool    `json:"is_manager" col:"is_manager"`
	IncumbentsCount  int     `json:"incumbents_count" col:"incumbents_count" validate:"gte=0"`
	SourceRow        int     `json:"source_row" col:"-"`
}

func (p Position) BusinessKey() string { return p.PosCode }
func (p Position) SourceLine() int     { return p.SourceRow }

// Fields treats is_manager as always present and a zero incumbents count as empty,
// since an empty cell coerces to zero.
func (p Position) Fields() []Field {
	count := Field{Name: "incumbents_count", Value: strconv.Itoa(p.IncumbentsCount), Empty: p.IncumbentsCount == 0}
	return []Field{
		textField("pos_code", p.PosCode),
		textField("title", p.Title),
		textField("dept_code", p.DeptCode),
		optionalField("reports_to_pos_code", p.ReportsToPosCode),
		{Name: "is_manager", Value: strconv.FormatBool(p.IsManager)},
		count,
	}
}

func (p Position) FillFrom(donor Position) Position {
	out := p
	if out.PosCode == "" {
		out.PosCode = donor.PosCode
	}
	if out.Title == "" {
		out.Title = donor.Title
	}
	if out.DeptCode == "" {
		out.DeptCode = donor.DeptCode
	}
	if out.ReportsToPosCode == nil {
		out.ReportsToPosCode = cloneString(donor.ReportsToPosCode)
	}
	if out.IncumbentsCount == 0 {
		out.IncumbentsCount = donor.IncumbentsCount
	}
	return out
}

func textField(name, v string) Field {
	return Field{Name: name, Value: v, Empty: strings.TrimSpace(v) == ""}
}

func optionalField(name string, v *string) Field {
	if v == nil {
		return Field{Name: name, Empty: true}
	}
	return textField(name, *v)
}

func metadataField(name string, v map[string]any) Field {
	if len(v) == 0 {
		return Field{Name: name, Empty: true}
	}
	// encoding/json sorts map keys, so equal maps render identically.
	b, err := json.Marshal(v)
	if err != nil {
		return Field{Name: name, Value: "<unprintable>"}
	}
	return Field{Name: name, Value: string(b)}
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func mergeMetadata(base, donor map[string]any) map[string]any {
	if base == nil && donor == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(donor))
	maps.Copy(out, base)
	for k, v := range donor {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
