package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/org-import/modules/orgimport/domain/issue"
)

func sampleNodes() []Node {
	return []Node{
		{ID: "ENG", ParentID: "HQ", Name: "Engineering"},
		{ID: "HQ", Name: "Head Office"},
		{ID: "PLT", ParentID: "ENG", Name: "Platform"},
		{ID: "APP", ParentID: "ENG", Name: "Apps"},
		{ID: "FIN", ParentID: "HQ", Name: "Finance"},
		{ID: "SUB", ParentID: "EXTERNAL", Name: "Subsidiary"},
	}
}

func byID(nodes []HierarchyNode) map[string]HierarchyNode {
	out := make(map[string]HierarchyNode, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n
	}
	return out
}

func TestEnrich(t *testing.T) {
	got := byID(Enrich(sampleNodes()))

	hq := got["HQ"]
	require.Equal(t, 0, hq.Level)
	require.True(t, hq.IsRoot)
	require.Equal(t, 2, hq.ChildCount)
	require.Equal(t, 4, hq.TotalDescendants)

	eng := got["ENG"]
	require.Equal(t, 1, eng.Level)
	require.Equal(t, 2, eng.ChildCount)
	require.Equal(t, 2, eng.TotalDescendants)
	require.False(t, eng.IsLeaf)

	plt := got["PLT"]
	require.Equal(t, 2, plt.Level)
	require.True(t, plt.IsLeaf)
	require.Zero(t, plt.TotalDescendants)

	sub := got["SUB"]
	require.True(t, sub.IsRoot, "parent outside the set")
	require.Equal(t, 0, sub.Level)
}

func TestEnrich_RoundTripThroughTree(t *testing.T) {
	first := Enrich(sampleNodes())
	again := Enrich(BuildTree(Strip(first)).Nodes())

	require.Equal(t, byID(first), byID(again))
}

func TestEnrich_CycleTerminates(t *testing.T) {
	got := byID(Enrich([]Node{
		{ID: "A", ParentID: "B", Name: "A"},
		{ID: "B", ParentID: "A", Name: "B"},
	}))

	require.Len(t, got, 2)
	require.False(t, got["A"].IsRoot)
	require.Equal(t, 1, got["A"].ChildCount)
}

func TestBuildTree(t *testing.T) {
	f := BuildTree(sampleNodes())

	require.Len(t, f.Roots, 2)
	require.Equal(t, "HQ", f.Roots[0].ID)
	require.Equal(t, "SUB", f.Roots[1].ID)
	require.Equal(t, "ENG", f.Roots[0].Children[0].ID)
	require.Equal(t, "APP", f.Roots[0].Children[0].Children[0].ID, "siblings sorted by name")

	ids := make([]string, 0, 6)
	for _, n := range f.Nodes() {
		ids = append(ids, n.ID)
	}
	require.Equal(t, []string{"HQ", "ENG", "APP", "PLT", "FIN", "SUB"}, ids)

	cyclic := BuildTree([]Node{{ID: "A", ParentID: "B"}, {ID: "B", ParentID: "A"}})
	require.Len(t, cyclic.Nodes(), 2, "cycle members are kept")
}

func TestValidateMove(t *testing.T) {
	nodes := sampleNodes()

	noop := ValidateMove("ENG", "HQ", nodes, nil)
	require.True(t, noop.NoOp)
	require.False(t, noop.IsValid)
	require.Empty(t, noop.Errors)

	ok := ValidateMove("PLT", "FIN", nodes, nil)
	require.True(t, ok.IsValid)
	require.False(t, ok.NoOp)

	self := ValidateMove("ENG", "ENG", nodes, nil)
	require.False(t, self.IsValid)
	require.Equal(t, MoveSelfParent, self.Errors[0].Code)

	intoSubtree := ValidateMove("ENG", "PLT", nodes, nil)
	require.False(t, intoSubtree.IsValid)
	require.Equal(t, MoveCreatesCycle, intoSubtree.Errors[0].Code)

	viaPending := ValidateMove("HQ", "FIN", nodes, []Move{{NodeID: "FIN", NewParentID: "PLT"}})
	require.False(t, viaPending.IsValid)
	require.Equal(t, MoveCreatesCycle, viaPending.Errors[0].Code)

	conflict := ValidateMove("PLT", "FIN", nodes, []Move{{NodeID: "PLT", NewParentID: "HQ"}})
	require.False(t, conflict.IsValid)
	require.Equal(t, MoveConflict, conflict.Errors[0].Code)

	missing := ValidateMove("NOPE", "HQ", nodes, nil)
	require.Equal(t, MoveNodeNotFound, missing.Errors[0].Code)
	missingParent := ValidateMove("PLT", "NOPE", nodes, nil)
	require.Equal(t, MoveParentNotFound, missingParent.Errors[0].Code)

	toTop := ValidateMove("ENG", "", nodes, nil)
	require.True(t, toTop.IsValid)
}

func TestValidatePending_Jointly(t *testing.T) {
	nodes := sampleNodes()
	pending := []Move{
		{NodeID: "FIN", NewParentID: "APP"},
		{NodeID: "ENG", NewParentID: "FIN"},
		{NodeID: "PLT", NewParentID: "HQ"},
	}

	got := ValidatePending(nodes, pending)

	require.Len(t, got, 3)
	require.False(t, got[0].IsValid)
	require.False(t, got[1].IsValid)
	require.True(t, got[2].IsValid)

	applied := byID(ApplyMoves(nodes, pending[2:]))
	require.Equal(t, "HQ", applied["PLT"].ParentID)
	require.Equal(t, 1, applied["PLT"].Level)
	require.Equal(t, 1, applied["ENG"].ChildCount)
}

func TestPlanWaves(t *testing.T) {
	nodes := []Node{
		{ID: "PLT", ParentID: "ENG", SourceRow: 4},
		{ID: "ENG", ParentID: "HQ", SourceRow: 3},
		{ID: "HQ", SourceRow: 2},
		{ID: "SUB", ParentID: "LEGACY", SourceRow: 5},
		{ID: "X", ParentID: "Y", SourceRow: 6},
		{ID: "Y", ParentID: "X", SourceRow: 7},
	}

	plan := PlanWaves(nodes, func(id string) bool { return id == "LEGACY" }, 0)

	require.Equal(t, DefaultMaxPasses, plan.MaxPasses)
	require.Len(t, plan.Waves, 3)
	require.Equal(t, []Node{nodes[2], nodes[3]}, plan.Waves[0])
	require.Equal(t, []Node{nodes[1]}, plan.Waves[1])
	require.Equal(t, []Node{nodes[0]}, plan.Waves[2])
	require.Equal(t, 4, plan.Size())

	require.Len(t, plan.Unresolved, 2)
	found := plan.Issues(issue.SheetDepartments, "parent_dept_code")
	require.Len(t, found, 2)
	require.Equal(t, issue.UnresolvableDependency, found[0].Type)
	require.Equal(t, 6, found[0].Row)
	require.Contains(t, found[0].Message, "still blocked after 4 passes")
}

func TestPlanWaves_BoundReached(t *testing.T) {
	nodes := []Node{{ID: "A"}, {ID: "B", ParentID: "A"}, {ID: "C", ParentID: "B"}, {ID: "D", ParentID: "C"}}

	plan := PlanWaves(nodes, nil, 2)

	require.Len(t, plan.Waves, 2)
	require.Equal(t, 2, plan.Passes)
	require.Len(t, plan.Unresolved, 2)
	require.Contains(t, plan.Issues(issue.SheetDepartments, "parent_dept_code")[0].Message, "still blocked after 2 passes")
}
