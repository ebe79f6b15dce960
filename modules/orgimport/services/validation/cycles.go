package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
)

// link is one child → parent edge of the batch. parent is "" for sentinel values.
type link struct {
	code   string
	parent string
	row    int
}

// cyclePass finds every cycle in the parent graph. Each node has at most one
// parent, so the depth-first walk is a single chain per start node; it is kept
// iterative with a global visited set and a per-walk recursion stack.
func cyclePass(sheet, column string, links []link) issue.List {
	parentOf := make(map[string]string, len(links))
	rowOf := make(map[string]int, len(links))
	order := make([]string, 0, len(links))
	for _, l := range links {
		if l.code == "" {
			continue
		}
		if _, seen := parentOf[l.code]; seen {
			continue
		}
		parentOf[l.code] = l.parent
		rowOf[l.code] = l.row
		order = append(order, l.code)
	}

	visited := make(map[string]bool, len(order))
	reported := make(map[string]bool)
	var out issue.List

	for _, start := range order {
		if visited[start] {
			continue
		}
		var stack []string
		onStack := make(map[string]int)
		cur := start
		for cur != "" {
			if idx, ok := onStack[cur]; ok {
				cycle := slices.Clone(stack[idx:])
				key := cycleKey(cycle)
				if !reported[key] {
					reported[key] = true
					out = append(out, cycleErrors(sheet, column, cycle, rowOf)...)
				}
				break
			}
			if visited[cur] {
				break
			}
			visited[cur] = true
			onStack[cur] = len(stack)
			stack = append(stack, cur)

			next, ok := parentOf[cur]
			if !ok {
				break
			}
			if _, inBatch := parentOf[next]; !inBatch {
				break
			}
			cur = next
		}
	}
	return out
}

func cycleKey(cycle []string) string {
	sorted := slices.Clone(cycle)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}

func cycleErrors(sheet, column string, cycle []string, rowOf map[string]int) issue.List {
	path := strings.Join(append(slices.Clone(cycle), cycle[0]), " → ")
	out := make(issue.List, 0, len(cycle))
	for _, code := range cycle {
		out = append(out, issue.New(issue.CircularReference, sheet, rowOf[code], column,
			fmt.Sprintf("circular reference: %s", path)).
			WithSuggestion(fmt.Sprintf("point %s of one of %s to a code outside the loop", column, strings.Join(cycle, ", "))).
			WithCodes(cycle...))
	}
	return out
}

// shapePass checks the department forest. Nodes whose parent is a stored
// department are anchored to existing data and count as neither roots nor
// orphans. A dangling parent anchors nothing.
func shapePass(links []link, batch, existing CodeSet) issue.List {
	var roots []string
	anchored := 0
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if l.code == "" || seen[l.code] {
			continue
		}
		seen[l.code] = true
		switch {
		case l.parent == "":
			roots = append(roots, l.code)
		case !batch.Has(l.parent) && existing.Has(l.parent):
			anchored++
		}
	}
	if len(seen) == 0 {
		return nil
	}
	switch {
	case len(roots) > 1:
		return issue.List{issue.New(issue.MultipleRoots, issue.SheetDepartments, 0, "parent_dept_code",
			fmt.Sprintf("%d top-level departments found: %s", len(roots), strings.Join(roots, ", "))).
			WithSuggestion("confirm the file describes several separate trees, or give all but one a parent").
			WithCodes(roots...)}
	case len(roots) == 0 && anchored == 0:
		return issue.List{issue.New(issue.NoRoot, issue.SheetDepartments, 0, "parent_dept_code",
			"no root department found: every department has a parent inside the file").
			WithSuggestion("leave parent_dept_code empty or type - for the top-level department")}
	}
	return nil
}
