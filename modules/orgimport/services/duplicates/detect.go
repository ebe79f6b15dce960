// Package duplicates groups rows that share a business key, scores them and
// applies a chosen resolution strategy.
package duplicates

import (
	"math"
	"slices"
	"strings"

	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
)

type Strategy string

const (
	KeepFirst Strategy = "keep-first"
	KeepLast  Strategy = "keep-last"
	Merge     Strategy = "merge"
	KeepAll   Strategy = "keep-all"
)

func (s Strategy) Valid() bool {
	switch s {
	case KeepFirst, KeepLast, Merge, KeepAll:
		return true
	}
	return false
}

type FieldDiff struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// Entry describes one duplicated business key. Occurrences are ordered most
// complete first; ties keep source order.
type Entry[T orgrow.Record[T]] struct {
	Key                 string      `json:"key"`
	Occurrences         []T         `json:"occurrences"`
	Scores              []float64   `json:"scores"`
	Differences         []FieldDiff `json:"differences"`
	RecommendedStrategy Strategy    `json:"recommended_strategy"`
	Reason              string      `json:"reason"`
}

type Detection[T orgrow.Record[T]] struct {
	Entries []Entry[T] `json:"entries"`
}

func (d Detection[T]) Keys() []string {
	out := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		out[i] = e.Key
	}
	return out
}

// Completeness is the share of non-empty fields, rounded to two decimals.
func Completeness[T orgrow.Record[T]](row T) float64 {
	fields := row.Fields()
	if len(fields) == 0 {
		return 0
	}
	filled := 0
	for _, f := range fields {
		if !f.Empty {
			filled++
		}
	}
	return math.Round(float64(filled)/float64(len(fields))*100) / 100
}

func Detect[T orgrow.Record[T]](rows []T) Detection[T] {
	groups := make(map[string][]T)
	var order []string
	for _, r := range rows {
		key := strings.TrimSpace(r.BusinessKey())
		if key == "" {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var out Detection[T]
	for _, key := range order {
		occ := groups[key]
		if len(occ) < 2 {
			continue
		}
		out.Entries = append(out.Entries, newEntry(key, occ))
	}
	return out
}

func newEntry[T orgrow.Record[T]](key string, occ []T) Entry[T] {
	sorted := slices.Clone(occ)
	slices.SortStableFunc(sorted, func(a, b T) int {
		sa, sb := Completeness(a), Completeness(b)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return a.SourceLine() - b.SourceLine()
	})
	scores := make([]float64, len(sorted))
	for i, r := range sorted {
		scores[i] = Completeness(r)
	}
	e := Entry[T]{
		Key:         key,
		Occurrences: sorted,
		Scores:      scores,
		Differences: diff(sorted),
	}
	e.RecommendedStrategy, e.Reason = Recommend(e)
	return e
}

func diff[T orgrow.Record[T]](occ []T) []FieldDiff {
	if len(occ) == 0 {
		return nil
	}
	base := occ[0].Fields()
	values := make([][]string, len(base))
	for i := range base {
		values[i] = make([]string, len(occ))
	}
	for j, r := range occ {
		for i, f := range r.Fields() {
			if i < len(values) {
				values[i][j] = f.Value
			}
		}
	}
	var out []FieldDiff
	for i, f := range base {
		if slices.ContainsFunc(values[i], func(v string) bool { return v != values[i][0] }) {
			out = append(out, FieldDiff{Field: f.Name, Values: values[i]})
		}
	}
	return out
}
