package services

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/org-import/modules/orgimport/services/hierarchy"
	"github.com/iota-uz/org-import/pkg/composables"
)

// MovesRequest stages re-parenting moves against a flat department hierarchy,
// usually the one returned by a preview.
type MovesRequest struct {
	Nodes []hierarchy.Node `json:"nodes"`
	Moves []hierarchy.Move `json:"moves"`
}

// MovesResult holds one verdict per staged move and the hierarchy after the valid ones.
type MovesResult struct {
	Validations []hierarchy.MoveValidation `json:"validations"`
	// Valid is false when at least one move was rejected with errors.
	Valid     bool                      `json:"valid"`
	Applied   int                       `json:"applied"`
	Hierarchy []hierarchy.HierarchyNode `json:"hierarchy"`
	Forest    hierarchy.Forest          `json:"forest"`
}

// ValidateMoves checks every staged move against the others and re-derives the
// hierarchy with only the valid moves applied. Nothing is written.
func (s *ImportService) ValidateMoves(ctx context.Context, req MovesRequest) (*MovesResult, error) {
	if len(req.Nodes) == 0 {
		return nil, newServiceError(http.StatusBadRequest, CodeValidation, "nodes must not be empty", nil)
	}
	if len(req.Moves) == 0 {
		return nil, newServiceError(http.StatusBadRequest, CodeValidation, "moves must not be empty", nil)
	}

	res := &MovesResult{Validations: hierarchy.ValidatePending(req.Nodes, req.Moves), Valid: true}
	valid := make([]hierarchy.Move, 0, len(req.Moves))
	for _, v := range res.Validations {
		switch {
		case v.IsValid:
			valid = append(valid, v.Move)
		case len(v.Errors) > 0:
			res.Valid = false
		}
	}
	res.Applied = len(valid)
	res.Hierarchy = hierarchy.ApplyMoves(req.Nodes, valid)
	res.Forest = hierarchy.BuildTree(hierarchy.Strip(res.Hierarchy))

	composables.UseLogger(ctx).WithFields(logrus.Fields{
		"nodes":    len(req.Nodes),
		"moves":    len(req.Moves),
		"applied":  res.Applied,
		"rejected": len(req.Moves) - res.Applied,
	}).Debug("org import moves validated")
	return res, nil
}
