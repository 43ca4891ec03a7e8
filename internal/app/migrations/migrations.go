// Package migrations bootstraps the relational schema used by the postgres
// store adapter.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS hr_employees (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		team TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hr_employees_tenant ON hr_employees (tenant_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS hr_contributions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		problem_solving TEXT NOT NULL DEFAULT '0',
		collaboration TEXT NOT NULL DEFAULT '0',
		initiative TEXT NOT NULL DEFAULT '0',
		overall_score TEXT NOT NULL DEFAULT '0',
		calculated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hr_contributions_tenant_employee ON hr_contributions (tenant_id, employee_id, calculated_at DESC)`,
	`CREATE TABLE IF NOT EXISTS hr_interactions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS hr_kudos (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		from_employee_id TEXT NOT NULL DEFAULT '',
		to_employee_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Apply executes every schema statement in order. Statements are idempotent.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
