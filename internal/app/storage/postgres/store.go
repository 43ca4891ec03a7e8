// Package postgres implements the storage interfaces backed by PostgreSQL.
//
// Score columns are stored as text by the upstream schema; they are decoded
// strictly on read and a malformed value fails the query rather than silently
// becoming zero.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
)

// Store implements the storage interfaces using database/sql.
type Store struct {
	db *sql.DB
}

var _ storage.EmployeeStore = (*Store)(nil)
var _ storage.ContributionStore = (*Store)(nil)
var _ storage.EngagementStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- EmployeeStore ----------------------------------------------------------

func (s *Store) CreateEmployee(ctx context.Context, emp employee.Employee) (employee.Employee, error) {
	if emp.TenantID == "" {
		return employee.Employee{}, errors.New("tenant_id required")
	}
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	emp.CreatedAt = now
	emp.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hr_employees (id, tenant_id, name, team, department, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, emp.ID, emp.TenantID, emp.Name, emp.Team, emp.Department, emp.CreatedAt, emp.UpdatedAt)
	if err != nil {
		return employee.Employee{}, err
	}
	return emp, nil
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, id string) (employee.Employee, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, team, department, created_at, updated_at
		FROM hr_employees
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)

	var emp employee.Employee
	err := row.Scan(&emp.ID, &emp.TenantID, &emp.Name, &emp.Team, &emp.Department, &emp.CreatedAt, &emp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return employee.Employee{}, storage.ErrNotFound
	}
	if err != nil {
		return employee.Employee{}, err
	}
	return emp, nil
}

func (s *Store) ListEmployees(ctx context.Context, tenantID string, page storage.Page) ([]employee.Employee, int, error) {
	page = page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM hr_employees WHERE tenant_id = $1
	`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, team, department, created_at, updated_at
		FROM hr_employees
		WHERE tenant_id = $1
		ORDER BY created_at, id
		OFFSET $2 LIMIT $3
	`, tenantID, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []employee.Employee
	for rows.Next() {
		var emp employee.Employee
		if err := rows.Scan(&emp.ID, &emp.TenantID, &emp.Name, &emp.Team, &emp.Department, &emp.CreatedAt, &emp.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, emp)
	}
	return result, total, rows.Err()
}

// --- ContributionStore ------------------------------------------------------

func (s *Store) CreateContribution(ctx context.Context, rec contribution.Record) (contribution.Record, error) {
	if rec.TenantID == "" || rec.EmployeeID == "" {
		return contribution.Record{}, errors.New("tenant_id and employee_id required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CalculatedAt.IsZero() {
		rec.CalculatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hr_contributions (id, tenant_id, employee_id, problem_solving, collaboration, initiative, overall_score, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.TenantID, rec.EmployeeID,
		formatScore(rec.ProblemSolving), formatScore(rec.Collaboration),
		formatScore(rec.Initiative), formatScore(rec.Overall), rec.CalculatedAt)
	if err != nil {
		return contribution.Record{}, err
	}
	return rec, nil
}

func (s *Store) LatestContribution(ctx context.Context, tenantID, employeeID string) (contribution.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, employee_id, problem_solving, collaboration, initiative, overall_score, calculated_at
		FROM hr_contributions
		WHERE tenant_id = $1 AND employee_id = $2
		ORDER BY calculated_at DESC, id DESC
		LIMIT 1
	`, tenantID, employeeID)

	rec, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contribution.Record{}, false, nil
	}
	if err != nil {
		return contribution.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) ListEmployeeContributions(ctx context.Context, tenantID, employeeID string) ([]contribution.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, employee_id, problem_solving, collaboration, initiative, overall_score, calculated_at
		FROM hr_contributions
		WHERE tenant_id = $1 AND employee_id = $2
		ORDER BY calculated_at, id
	`, tenantID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []contribution.Record
	for rows.Next() {
		rec, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) ListContributions(ctx context.Context, tenantID string, page storage.Page) ([]contribution.Record, int, error) {
	page = page.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM hr_contributions WHERE tenant_id = $1
	`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, employee_id, problem_solving, collaboration, initiative, overall_score, calculated_at
		FROM hr_contributions
		WHERE tenant_id = $1
		ORDER BY calculated_at, id
		OFFSET $2 LIMIT $3
	`, tenantID, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []contribution.Record
	for rows.Next() {
		rec, err := scanContribution(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rec)
	}
	return result, total, rows.Err()
}

// --- EngagementStore --------------------------------------------------------

func (s *Store) CreateInteraction(ctx context.Context, in engagement.Interaction) (engagement.Interaction, error) {
	if in.TenantID == "" {
		return engagement.Interaction{}, errors.New("tenant_id required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hr_interactions (id, tenant_id, employee_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, in.ID, in.TenantID, in.EmployeeID, in.Kind, in.OccurredAt)
	if err != nil {
		return engagement.Interaction{}, err
	}
	return in, nil
}

func (s *Store) CreateKudos(ctx context.Context, k engagement.Kudos) (engagement.Kudos, error) {
	if k.TenantID == "" {
		return engagement.Kudos{}, errors.New("tenant_id required")
	}
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hr_kudos (id, tenant_id, from_employee_id, to_employee_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, k.ID, k.TenantID, k.FromEmployeeID, k.ToEmployeeID, k.Message, k.CreatedAt)
	if err != nil {
		return engagement.Kudos{}, err
	}
	return k, nil
}

func (s *Store) CountInteractions(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM hr_interactions WHERE tenant_id = $1
	`, tenantID).Scan(&n)
	return n, err
}

func (s *Store) CountKudos(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM hr_kudos WHERE tenant_id = $1
	`, tenantID).Scan(&n)
	return n, err
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContribution(row rowScanner) (contribution.Record, error) {
	var (
		rec                                contribution.Record
		problem, collab, initiative, total string
	)
	if err := row.Scan(&rec.ID, &rec.TenantID, &rec.EmployeeID, &problem, &collab, &initiative, &total, &rec.CalculatedAt); err != nil {
		return contribution.Record{}, err
	}

	var err error
	if rec.ProblemSolving, err = parseScore("problem_solving", problem); err != nil {
		return contribution.Record{}, err
	}
	if rec.Collaboration, err = parseScore("collaboration", collab); err != nil {
		return contribution.Record{}, err
	}
	if rec.Initiative, err = parseScore("initiative", initiative); err != nil {
		return contribution.Record{}, err
	}
	if rec.Overall, err = parseScore("overall_score", total); err != nil {
		return contribution.Record{}, err
	}
	rec.CalculatedAt = rec.CalculatedAt.UTC()
	return rec, nil
}

// parseScore decodes a text-typed score column. Empty means zero; anything
// non-numeric fails the read.
func parseScore(column, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s value %q: %w", column, raw, err)
	}
	return v, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
