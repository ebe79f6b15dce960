package services

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence collaborator. Inserts of one wave may run
// concurrently, so implementations must not share a single transaction.
type Store interface {
	ListDepartmentCodes(ctx context.Context) (map[string]uuid.UUID, error)
	ListPositionCodes(ctx context.Context) (map[string]uuid.UUID, error)
	InsertDepartment(ctx context.Context, in DepartmentInsert) (uuid.UUID, error)
	InsertPosition(ctx context.Context, in PositionInsert) (uuid.UUID, error)
}

type DepartmentInsert struct {
	RunID       uuid.UUID
	Code        string
	Name        string
	ParentID    *uuid.UUID
	Description *string
	Metadata    map[string]any
	CreatedBy   uuid.UUID
}

type PositionInsert struct {
	RunID           uuid.UUID
	Code            string
	Title           string
	DepartmentID    uuid.UUID
	ReportsToID     *uuid.UUID
	IsManager       bool
	IncumbentsCount int
	CreatedBy       uuid.UUID
}
