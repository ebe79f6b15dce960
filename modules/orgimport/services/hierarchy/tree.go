// Package hierarchy derives tree structure, validates moves and sequences
// creation waves for parent/child data.
package hierarchy

import (
	"cmp"
	"slices"
)

// Node is a flat parent link. ParentID is "" for top-level nodes.
type Node struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id,omitempty"`
	Name      string `json:"name"`
	SourceRow int    `json:"source_row,omitempty"`
}

// HierarchyNode carries the derived attributes. They are recomputed from the
// full node set every time; nothing is patched incrementally.
type HierarchyNode struct {
	Node
	Level            int  `json:"level"`
	ChildCount       int  `json:"child_count"`
	TotalDescendants int  `json:"total_descendants"`
	IsRoot           bool `json:"is_root"`
	IsLeaf           bool `json:"is_leaf"`
}

func Strip(nodes []HierarchyNode) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Node
	}
	return out
}

type TreeNode struct {
	Node
	Children []*TreeNode `json:"children,omitempty"`
}

type Forest struct {
	Roots []*TreeNode `json:"roots"`
}

// Nodes flattens the forest in pre-order.
func (f Forest) Nodes() []Node {
	var out []Node
	stack := slices.Clone(f.Roots)
	slices.Reverse(stack)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n.Node)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return out
}

type graph struct {
	order    []string
	byID     map[string]Node
	children map[string][]string
}

func newGraph(nodes []Node) *graph {
	g := &graph{
		byID:     make(map[string]Node, len(nodes)),
		children: make(map[string][]string, len(nodes)),
	}
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if _, seen := g.byID[n.ID]; seen {
			continue
		}
		g.byID[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	for _, id := range g.order {
		if p, ok := g.parent(id); ok {
			g.children[p] = append(g.children[p], id)
		}
	}
	for p := range g.children {
		slices.SortFunc(g.children[p], g.compare)
	}
	return g
}

// parent returns the parent id when it is part of the set.
func (g *graph) parent(id string) (string, bool) {
	n := g.byID[id]
	if n.ParentID == "" || n.ParentID == id {
		return "", false
	}
	if _, ok := g.byID[n.ParentID]; !ok {
		return "", false
	}
	return n.ParentID, true
}

func (g *graph) compare(a, b string) int {
	return cmp.Or(cmp.Compare(g.byID[a].Name, g.byID[b].Name), cmp.Compare(a, b))
}

// BuildTree nests nodes under their parents. A node whose parent is missing from the
// set becomes a root; nodes only reachable through a cycle are added as extra roots.
func BuildTree(nodes []Node) Forest {
	g := newGraph(nodes)
	var roots []string
	for _, id := range g.order {
		if _, ok := g.parent(id); !ok {
			roots = append(roots, id)
		}
	}
	slices.SortFunc(roots, g.compare)

	visited := make(map[string]bool, len(g.order))
	var f Forest
	for _, id := range roots {
		f.Roots = append(f.Roots, g.subtree(id, visited))
	}
	for _, id := range g.order {
		if !visited[id] {
			f.Roots = append(f.Roots, g.subtree(id, visited))
		}
	}
	return f
}

func (g *graph) subtree(id string, visited map[string]bool) *TreeNode {
	visited[id] = true
	t := &TreeNode{Node: g.byID[id]}
	for _, c := range g.children[id] {
		if visited[c] {
			continue
		}
		t.Children = append(t.Children, g.subtree(c, visited))
	}
	return t
}

// Enrich computes level, child counts, descendant totals and root/leaf flags.
// Output follows input order with duplicate ids dropped.
func Enrich(nodes []Node) []HierarchyNode {
	g := newGraph(nodes)
	levels := make(map[string]int, len(g.order))
	descendants := make(map[string]int, len(g.order))
	inProgress := make(map[string]bool)

	out := make([]HierarchyNode, 0, len(g.order))
	for _, id := range g.order {
		_, hasParent := g.parent(id)
		childCount := len(g.children[id])
		out = append(out, HierarchyNode{
			Node:             g.byID[id],
			Level:            g.level(id, levels),
			ChildCount:       childCount,
			TotalDescendants: g.descendants(id, descendants, inProgress),
			IsRoot:           !hasParent,
			IsLeaf:           childCount == 0,
		})
	}
	return out
}

// level walks up until it reaches a memoized node, a root, or a node already on
// the walk (a cycle, which is treated as level 0).
func (g *graph) level(id string, memo map[string]int) int {
	if l, ok := memo[id]; ok {
		return l
	}
	var path []string
	onPath := make(map[string]bool)
	base := -1
	cur := id
	for {
		if l, ok := memo[cur]; ok {
			base = l
			break
		}
		if onPath[cur] {
			break
		}
		onPath[cur] = true
		path = append(path, cur)
		p, ok := g.parent(cur)
		if !ok {
			break
		}
		cur = p
	}
	for i := len(path) - 1; i >= 0; i-- {
		base++
		memo[path[i]] = base
	}
	return memo[id]
}

func (g *graph) descendants(id string, memo map[string]int, inProgress map[string]bool) int {
	if d, ok := memo[id]; ok {
		return d
	}
	if inProgress[id] {
		return 0
	}
	inProgress[id] = true
	total := 0
	for _, c := range g.children[id] {
		if inProgress[c] {
			continue
		}
		total += 1 + g.descendants(c, memo, inProgress)
	}
	delete(inProgress, id)
	memo[id] = total
	return total
}
