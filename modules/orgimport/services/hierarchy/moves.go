package hierarchy

import "fmt"

// Move re-parents NodeID under NewParentID ("" moves it to the top level).
type Move struct {
	NodeID      string `json:"node_id"`
	NewParentID string `json:"new_parent_id"`
}

type MoveErrorCode string

const (
	MoveNodeNotFound   MoveErrorCode = "node_not_found"
	MoveParentNotFound MoveErrorCode = "parent_not_found"
	MoveSelfParent     MoveErrorCode = "self_parent"
	MoveCreatesCycle   MoveErrorCode = "creates_cycle"
	MoveConflict       MoveErrorCode = "conflicting_move"
)

type MoveError struct {
	Code    MoveErrorCode `json:"code"`
	Message string        `json:"message"`
}

// MoveValidation is the verdict for one move. A NoOp move is not valid but
// carries no errors.
type MoveValidation struct {
	Move
	IsValid bool        `json:"is_valid"`
	NoOp    bool        `json:"no_op"`
	Errors  []MoveError `json:"errors,omitempty"`
}

func ValidateMove(nodeID, newParentID string, all []Node, pending []Move) MoveValidation {
	return validateMove(newGraph(all), Move{NodeID: nodeID, NewParentID: newParentID}, pending)
}

// ValidatePending checks every staged move against all the others, so two
// moves that are fine alone but form a loop together are both rejected.
func ValidatePending(all []Node, pending []Move) []MoveValidation {
	g := newGraph(all)
	out := make([]MoveValidation, len(pending))
	others := make([]Move, 0, len(pending))
	for i, m := range pending {
		others = others[:0]
		others = append(others, pending[:i]...)
		others = append(others, pending[i+1:]...)
		out[i] = validateMove(g, m, others)
	}
	return out
}

func validateMove(g *graph, m Move, pending []Move) MoveValidation {
	res := MoveValidation{Move: m}
	fail := func(code MoveErrorCode, format string, args ...any) MoveValidation {
		res.Errors = append(res.Errors, MoveError{Code: code, Message: fmt.Sprintf(format, args...)})
		return res
	}

	node, ok := g.byID[m.NodeID]
	if !ok {
		return fail(MoveNodeNotFound, "node %q does not exist", m.NodeID)
	}
	if m.NewParentID != "" {
		if _, ok := g.byID[m.NewParentID]; !ok {
			return fail(MoveParentNotFound, "target parent %q does not exist", m.NewParentID)
		}
	}
	if m.NewParentID == m.NodeID {
		return fail(MoveSelfParent, "node %q cannot be its own parent", m.NodeID)
	}

	staged := false
	for _, p := range pending {
		if p.NodeID != m.NodeID {
			continue
		}
		staged = true
		if p.NewParentID != m.NewParentID {
			res.Errors = append(res.Errors, MoveError{
				Code:    MoveConflict,
				Message: fmt.Sprintf("node %q already has a pending move to %q", m.NodeID, p.NewParentID),
			})
		}
	}
	if !staged && len(res.Errors) == 0 && node.ParentID == m.NewParentID {
		res.NoOp = true
		return res
	}

	parents := make(map[string]string, len(g.byID))
	for id, n := range g.byID {
		parents[id] = n.ParentID
	}
	for _, p := range pending {
		if p.NodeID != m.NodeID {
			parents[p.NodeID] = p.NewParentID
		}
	}
	parents[m.NodeID] = m.NewParentID

	// Walk up from the new parent; reaching the moved node means the target is
	// inside its own subtree.
	seen := make(map[string]bool)
	for cur := m.NewParentID; cur != "" && !seen[cur]; cur = parents[cur] {
		if cur == m.NodeID {
			res.Errors = append(res.Errors, MoveError{
				Code:    MoveCreatesCycle,
				Message: fmt.Sprintf("moving %q under %q would place it inside its own subtree", m.NodeID, m.NewParentID),
			})
			break
		}
		seen[cur] = true
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// ApplyMoves returns the hierarchy re-derived after the moves. Later moves of the
// same node win. Validate first; this does not reject cycles.
func ApplyMoves(nodes []Node, moves []Move) []HierarchyNode {
	target := make(map[string]string, len(moves))
	for _, m := range moves {
		target[m.NodeID] = m.NewParentID
	}
	moved := make([]Node, len(nodes))
	for i, n := range nodes {
		if p, ok := target[n.ID]; ok {
			n.ParentID = p
		}
		moved[i] = n
	}
	return Enrich(moved)
}
