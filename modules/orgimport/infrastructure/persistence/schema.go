package persistence

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/iota-uz/org-import/pkg/composables"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS org_import_departments (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id uuid NOT NULL,
	code text NOT NULL,
	name text NOT NULL,
	parent_id uuid NULL REFERENCES org_import_departments (id),
	description text NULL,
	metadata jsonb NULL,
	import_run_id uuid NOT NULL,
	created_by uuid NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	CONSTRAINT org_import_departments_code_key UNIQUE (tenant_id, code)
)`,
	`CREATE TABLE IF NOT EXISTS org_import_positions (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	tenant_id uuid NOT NULL,
	code text NOT NULL,
	title text NOT NULL,
	department_id uuid NOT NULL REFERENCES org_import_departments (id),
	reports_to_id uuid NULL REFERENCES org_import_positions (id),
	is_manager boolean NOT NULL DEFAULT false,
	incumbents_count integer NOT NULL DEFAULT 0 CHECK (incumbents_count >= 0),
	import_run_id uuid NOT NULL,
	created_by uuid NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	CONSTRAINT org_import_positions_code_key UNIQUE (tenant_id, code)
)`,
	`CREATE INDEX IF NOT EXISTS org_import_departments_run_idx ON org_import_departments (tenant_id, import_run_id)`,
	`CREATE INDEX IF NOT EXISTS org_import_positions_run_idx ON org_import_positions (tenant_id, import_run_id)`,
}

// EnsureSchema creates the import tables when they are missing.
func EnsureSchema(ctx context.Context) error {
	return composables.InTx(ctx, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(txCtx, stmt); err != nil {
				return errors.Wrap(err, "ensure org import schema")
			}
		}
		return nil
	})
}
