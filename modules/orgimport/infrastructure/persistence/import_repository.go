package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iota-uz/org-import/modules/orgimport/services"
	"github.com/iota-uz/org-import/pkg/composables"
)

var ErrCodeTaken = errors.New("code already exists for tenant")

const uniqueViolation = "23505"

// ImportRepository persists imported rows. It reads the querier from ctx on
// every call, so concurrent inserts of one wave go straight to the pool.
type ImportRepository struct{}

func NewImportRepository() *ImportRepository {
	return &ImportRepository{}
}

var _ services.Store = (*ImportRepository)(nil)

func (r *ImportRepository) ListDepartmentCodes(ctx context.Context) (map[string]uuid.UUID, error) {
	return r.listCodes(ctx, `SELECT code, id FROM org_import_departments WHERE tenant_id = $1`)
}

func (r *ImportRepository) ListPositionCodes(ctx context.Context) (map[string]uuid.UUID, error) {
	return r.listCodes(ctx, `SELECT code, id FROM org_import_positions WHERE tenant_id = $1`)
}

func (r *ImportRepository) listCodes(ctx context.Context, query string) (map[string]uuid.UUID, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant from context: %w", err)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, pgUUID(tenantID))
	if err != nil {
		return nil, errors.Wrap(err, "list codes")
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var code string
		var id pgtype.UUID
		if err := rows.Scan(&code, &id); err != nil {
			return nil, errors.Wrap(err, "scan code")
		}
		out[code] = asUUID(id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list codes")
	}
	return out, nil
}

func (r *ImportRepository) InsertDepartment(ctx context.Context, in services.DepartmentInsert) (uuid.UUID, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get tenant from context: %w", err)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO org_import_departments (tenant_id, code, name, parent_id, description, metadata, import_run_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id
`,
		pgUUID(tenantID),
		in.Code,
		in.Name,
		pgNullableUUID(in.ParentID),
		pgNullableText(in.Description),
		metadataParam(in.Metadata),
		pgUUID(in.RunID),
		pgUUID(in.CreatedBy),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, insertError("department", in.Code, err)
	}
	return asUUID(id), nil
}

func (r *ImportRepository) InsertPosition(ctx context.Context, in services.PositionInsert) (uuid.UUID, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get tenant from context: %w", err)
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var id pgtype.UUID
	err = tx.QueryRow(ctx, `
INSERT INTO org_import_positions (tenant_id, code, title, department_id, reports_to_id, is_manager, incumbents_count, import_run_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id
`,
		pgUUID(tenantID),
		in.Code,
		in.Title,
		pgUUID(in.DepartmentID),
		pgNullableUUID(in.ReportsToID),
		in.IsManager,
		int32(in.IncumbentsCount),
		pgUUID(in.RunID),
		pgUUID(in.CreatedBy),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, insertError("position", in.Code, err)
	}
	return asUUID(id), nil
}

func insertError(entity, code string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Wrapf(ErrCodeTaken, "%s %q", entity, code)
	}
	return errors.Wrapf(err, "insert %s %q", entity, code)
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgNullableUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func pgNullableText(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *v, Valid: true}
}

func asUUID(v pgtype.UUID) uuid.UUID {
	if !v.Valid {
		return uuid.Nil
	}
	return uuid.UUID(v.Bytes)
}

// metadataParam sends empty metadata as SQL NULL instead of a JSON null.
func metadataParam(m map[string]any) any {
	if len(m) == 0 {
		return nil
	}
	return m
}
