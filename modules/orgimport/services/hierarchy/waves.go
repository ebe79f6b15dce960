package hierarchy

import (
	"fmt"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
)

const DefaultMaxPasses = 10

type Blocked struct {
	Node
	Passes int `json:"passes"`
}

// WavePlan orders creation so that every node's parent exists before the node is
// written. Waves[0] holds nodes with no parent or an already persisted parent.
type WavePlan struct {
	Waves      [][]Node  `json:"waves"`
	Unresolved []Blocked `json:"unresolved,omitempty"`
	Passes     int       `json:"passes"`
	MaxPasses  int       `json:"max_passes"`
}

func (p WavePlan) Size() int {
	n := 0
	for _, w := range p.Waves {
		n += len(w)
	}
	return n
}

// PlanWaves groups nodes into dependency waves. exists reports parents that are
// already persisted; nil means none are. At most maxPasses waves are formed
// (DefaultMaxPasses when maxPasses <= 0); whatever is left is reported as blocked.
func PlanWaves(nodes []Node, exists func(id string) bool, maxPasses int) WavePlan {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	if exists == nil {
		exists = func(string) bool { return false }
	}
	plan := WavePlan{MaxPasses: maxPasses}

	seen := make(map[string]bool, len(nodes))
	remaining := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		remaining = append(remaining, n)
	}

	created := make(map[string]bool, len(remaining))
	for len(remaining) > 0 && plan.Passes < maxPasses {
		plan.Passes++
		var wave, next []Node
		for _, n := range remaining {
			if n.ParentID == "" || (n.ParentID != n.ID && (created[n.ParentID] || (!seen[n.ParentID] && exists(n.ParentID)))) {
				wave = append(wave, n)
			} else {
				next = append(next, n)
			}
		}
		if len(wave) == 0 {
			break
		}
		for _, n := range wave {
			created[n.ID] = true
		}
		plan.Waves = append(plan.Waves, wave)
		remaining = next
	}
	for _, n := range remaining {
		plan.Unresolved = append(plan.Unresolved, Blocked{Node: n, Passes: plan.Passes})
	}
	return plan
}

// Issues reports every blocked node as an unresolvable dependency.
func (p WavePlan) Issues(sheet, column string) issue.List {
	out := make(issue.List, 0, len(p.Unresolved))
	for _, b := range p.Unresolved {
		out = append(out, issue.New(issue.UnresolvableDependency, sheet, b.SourceRow, column,
			fmt.Sprintf("%q is still blocked after %d passes waiting for %q", b.ID, b.Passes, b.ParentID)).
			WithSuggestion(fmt.Sprintf("check that %q is created by this file or already exists, or raise the pass limit (currently %d)", b.ParentID, p.MaxPasses)).
			WithCodes(b.ID, b.ParentID))
	}
	return out
}
