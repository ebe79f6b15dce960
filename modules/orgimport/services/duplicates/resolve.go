package duplicates

import (
	"fmt"
	"slices"
	"strings"

	"github.com/iota-uz/org-import/modules/orgimport/domain/orgrow"
)

// Recommend picks a strategy for an entry. It only inspects the entry, so callers
// may swap in their own policy and still use Resolve.
func Recommend[T orgrow.Record[T]](e Entry[T]) (Strategy, string) {
	if field, ok := conflictingField(e.Occurrences); ok {
		return KeepFirst, fmt.Sprintf("occurrences disagree on %s; keeping the most complete row", field)
	}
	return Merge, "occurrences only differ in empty fields and can be merged without loss"
}

func conflictingField[T orgrow.Record[T]](occ []T) (string, bool) {
	if len(occ) == 0 {
		return "", false
	}
	seen := make(map[string]string)
	for _, r := range occ {
		for _, f := range r.Fields() {
			if f.Empty {
				continue
			}
			if prev, ok := seen[f.Name]; ok && prev != f.Value {
				return f.Name, true
			}
			seen[f.Name] = f.Value
		}
	}
	return "", false
}

type Resolution[T orgrow.Record[T]] struct {
	Key       string   `json:"key"`
	Strategy  Strategy `json:"strategy"`
	Kept      []T      `json:"kept"`
	Discarded []T      `json:"discarded"`
}

// Resolve applies a strategy to an entry. It never re-scores or re-recommends.
func Resolve[T orgrow.Record[T]](e Entry[T], strategy Strategy) (Resolution[T], error) {
	res := Resolution[T]{Key: e.Key, Strategy: strategy}
	if len(e.Occurrences) == 0 {
		return res, nil
	}
	switch strategy {
	case KeepFirst:
		res.Kept = []T{e.Occurrences[0]}
		res.Discarded = slices.Clone(e.Occurrences[1:])
	case KeepLast:
		last := 0
		for i, r := range e.Occurrences {
			if r.SourceLine() > e.Occurrences[last].SourceLine() {
				last = i
			}
		}
		res.Kept = []T{e.Occurrences[last]}
		for i, r := range e.Occurrences {
			if i != last {
				res.Discarded = append(res.Discarded, r)
			}
		}
	case Merge:
		merged := e.Occurrences[0]
		for _, donor := range e.Occurrences[1:] {
			merged = merged.FillFrom(donor)
		}
		res.Kept = []T{merged}
		res.Discarded = slices.Clone(e.Occurrences[1:])
	case KeepAll:
		kept := slices.Clone(e.Occurrences)
		slices.SortStableFunc(kept, func(a, b T) int { return a.SourceLine() - b.SourceLine() })
		res.Kept = kept
	default:
		return res, fmt.Errorf("unknown duplicate strategy %q", strategy)
	}
	return res, nil
}

// AutoResolveAll resolves every entry with its recommended strategy.
func AutoResolveAll[T orgrow.Record[T]](d Detection[T]) []Resolution[T] {
	out := make([]Resolution[T], 0, len(d.Entries))
	for _, e := range d.Entries {
		// Recommend only returns known strategies.
		res, _ := Resolve(e, e.RecommendedStrategy)
		out = append(out, res)
	}
	return out
}

// Apply rebuilds a batch from resolutions. Kept rows take the position of the
// group's first occurrence; rows without a resolution pass through.
func Apply[T orgrow.Record[T]](rows []T, resolutions []Resolution[T]) []T {
	byKey := make(map[string]Resolution[T], len(resolutions))
	for _, r := range resolutions {
		byKey[r.Key] = r
	}
	emitted := make(map[string]bool, len(resolutions))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		key := strings.TrimSpace(r.BusinessKey())
		res, ok := byKey[key]
		if !ok {
			out = append(out, r)
			continue
		}
		if emitted[key] {
			continue
		}
		emitted[key] = true
		out = append(out, res.Kept...)
	}
	return out
}

// AcceptedKeys returns the keys resolved with keep-all.
func AcceptedKeys[T orgrow.Record[T]](resolutions []Resolution[T]) []string {
	var out []string
	for _, r := range resolutions {
		if r.Strategy == KeepAll {
			out = append(out, r.Key)
		}
	}
	return out
}
