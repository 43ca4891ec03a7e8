package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestGetEmployeeNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, tenant_id, name, team, department").
		WithArgs("acme", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "team", "department", "created_at", "updated_at"}))

	_, err := store.GetEmployee(context.Background(), "acme", "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetEmployee(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, tenant_id, name, team, department").
		WithArgs("acme", "e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "team", "department", "created_at", "updated_at"}).
			AddRow("e1", "acme", "Ada", "team-a", "eng", now, now))

	emp, err := store.GetEmployee(context.Background(), "acme", "e1")
	if err != nil {
		t.Fatalf("GetEmployee: %v", err)
	}
	if emp.Name != "Ada" || emp.TenantID != "acme" {
		t.Fatalf("unexpected employee %+v", emp)
	}
}

func TestLatestContributionDecodesTextScores(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, tenant_id, employee_id, problem_solving").
		WithArgs("acme", "e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "employee_id", "problem_solving", "collaboration", "initiative", "overall_score", "calculated_at"}).
			AddRow("c1", "acme", "e1", "70.5", "80", "90.25", "80.25", now))

	rec, ok, err := store.LatestContribution(context.Background(), "acme", "e1")
	if err != nil {
		t.Fatalf("LatestContribution: %v", err)
	}
	if !ok {
		t.Fatal("expected a record")
	}
	if rec.ProblemSolving != 70.5 || rec.Initiative != 90.25 || rec.Overall != 80.25 {
		t.Fatalf("score decoding wrong: %+v", rec)
	}
}

func TestLatestContributionBreaksTimestampTiesByID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	// Equal calculated_at values must resolve to the highest id, matching the
	// in-memory store's later-insertion-wins behavior.
	mock.ExpectQuery(`ORDER BY calculated_at DESC, id DESC`).
		WithArgs("acme", "e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "employee_id", "problem_solving", "collaboration", "initiative", "overall_score", "calculated_at"}).
			AddRow("c2", "acme", "e1", "0", "0", "0", "20", now))

	rec, ok, err := store.LatestContribution(context.Background(), "acme", "e1")
	if err != nil {
		t.Fatalf("LatestContribution: %v", err)
	}
	if !ok || rec.ID != "c2" || rec.Overall != 20 {
		t.Fatalf("unexpected record: %+v ok=%v", rec, ok)
	}
}

func TestLatestContributionAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, tenant_id, employee_id, problem_solving").
		WithArgs("acme", "e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "employee_id", "problem_solving", "collaboration", "initiative", "overall_score", "calculated_at"}))

	_, ok, err := store.LatestContribution(context.Background(), "acme", "e1")
	if err != nil {
		t.Fatalf("LatestContribution: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false")
	}
}

func TestLatestContributionMalformedScoreFails(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, tenant_id, employee_id, problem_solving").
		WithArgs("acme", "e1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "employee_id", "problem_solving", "collaboration", "initiative", "overall_score", "calculated_at"}).
			AddRow("c1", "acme", "e1", "not-a-number", "80", "90", "85", now))

	_, _, err := store.LatestContribution(context.Background(), "acme", "e1")
	if err == nil {
		t.Fatal("expected decode error for malformed score")
	}
}

func TestListContributionsPaged(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM hr_contributions`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery("SELECT id, tenant_id, employee_id, problem_solving").
		WithArgs("acme", 0, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "employee_id", "problem_solving", "collaboration", "initiative", "overall_score", "calculated_at"}).
			AddRow("c1", "acme", "e1", "10", "10", "10", "10", now).
			AddRow("c2", "acme", "e2", "20", "20", "20", "20", now))

	items, total, err := store.ListContributions(context.Background(), "acme", storage.Page{Limit: 2})
	if err != nil {
		t.Fatalf("ListContributions: %v", err)
	}
	if total != 42 {
		t.Fatalf("expected total 42, got %d", total)
	}
	if len(items) != 2 || items[1].Overall != 20 {
		t.Fatalf("unexpected page %+v", items)
	}
}

func TestCreateContribution(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO hr_contributions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := store.CreateContribution(context.Background(), contribution.Record{
		TenantID:   "acme",
		EmployeeID: "e1",
		Overall:    75,
	})
	if err != nil {
		t.Fatalf("CreateContribution: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated ID")
	}
	if rec.CalculatedAt.IsZero() {
		t.Fatal("expected CalculatedAt default")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountInteractions(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM hr_interactions`).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountInteractions(context.Background(), "acme")
	if err != nil {
		t.Fatalf("CountInteractions: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
}
