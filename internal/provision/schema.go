package provision

import (
	"context"
	"fmt"

	"github.com/nimbuslabs/nimbus/internal/model"
)

// CreateTenantSchema creates the per-tenant schema and grants the service
// principal access. "CREATE SCHEMA IF NOT EXISTS" plus idempotent grants make
// re-runs safe.
func (h *Handlers) CreateTenantSchema(ctx context.Context, projectID string) (*model.StepResult, error) {
	project, fail, err := h.validSlugProject(ctx, projectID)
	if fail != nil || err != nil {
		return fail, err
	}

	schema := project.SchemaName()

	if _, err := h.db.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
		return nil, fmt.Errorf("create schema %s: %w", schema, err)
	}

	grant := fmt.Sprintf(`GRANT USAGE, CREATE ON SCHEMA %q TO %q`, schema, h.cfg.DatabaseUser)
	if _, err := h.db.Exec(ctx, grant); err != nil {
		return nil, fmt.Errorf("grant on schema %s: %w", schema, err)
	}

	h.logger.Info().Str("project_id", projectID).Str("schema", schema).Msg("tenant schema ready")
	return success(map[string]any{"schema": schema}), nil
}

// tenantTables defines the DDL for the tenant namespace. All statements are
// "if not exists" so re-runs are no-ops; row-level security policies are
// dropped and recreated by name to tolerate re-runs.
func tenantTableStatements(schema, serviceRole string) []string {
	q := func(format string, args ...any) string {
		return fmt.Sprintf(format, args...)
	}
	return []string{
		q(`CREATE TABLE IF NOT EXISTS %q.users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, schema),
		q(`CREATE INDEX IF NOT EXISTS idx_users_email ON %q.users (email)`, schema),
		q(`CREATE TABLE IF NOT EXISTS %q.audit_log (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			user_id UUID,
			action TEXT NOT NULL,
			detail JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, schema),
		q(`CREATE INDEX IF NOT EXISTS idx_audit_log_user_id ON %q.audit_log (user_id)`, schema),
		q(`CREATE TABLE IF NOT EXISTS %q._migrations (
			version BIGINT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, schema),
		q(`ALTER TABLE %q.users ENABLE ROW LEVEL SECURITY`, schema),
		q(`ALTER TABLE %q.audit_log ENABLE ROW LEVEL SECURITY`, schema),
		q(`DROP POLICY IF EXISTS users_self ON %q.users`, schema),
		q(`CREATE POLICY users_self ON %q.users
			USING (id = current_setting('app.user_id', true)::uuid OR current_user = '%s')`, schema, serviceRole),
		q(`DROP POLICY IF EXISTS audit_log_owner ON %q.audit_log`, schema),
		q(`CREATE POLICY audit_log_owner ON %q.audit_log
			USING (user_id = current_setting('app.user_id', true)::uuid OR current_user = '%s')`, schema, serviceRole),
	}
}

// CreateTenantDatabase creates the tenant tables with indexes and row-level
// isolation policies scoping rows to the owning user or the service role.
func (h *Handlers) CreateTenantDatabase(ctx context.Context, projectID string) (*model.StepResult, error) {
	project, fail, err := h.validSlugProject(ctx, projectID)
	if fail != nil || err != nil {
		return fail, err
	}

	schema := project.SchemaName()
	statements := tenantTableStatements(schema, h.cfg.DatabaseUser)
	for _, stmt := range statements {
		if _, err := h.db.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create tenant tables in %s: %w", schema, err)
		}
	}

	h.logger.Info().Str("project_id", projectID).Str("schema", schema).Msg("tenant tables ready")
	return success(map[string]any{
		"schema": schema,
		"tables": []string{"users", "audit_log", "_migrations"},
	}), nil
}
