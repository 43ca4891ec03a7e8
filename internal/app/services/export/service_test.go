package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	analyticssvc "github.com/pulsehr/analytics_layer/internal/app/services/analytics"
	"github.com/pulsehr/analytics_layer/internal/app/storage/memory"
)

func newTestExport(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	analytics := analyticssvc.New(store, store, store, nil)
	svc, err := New(t.TempDir(), analytics, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, store
}

func TestExportEmployeeMetrics(t *testing.T) {
	svc, store := newTestExport(t)
	ctx := context.Background()

	if _, err := store.CreateEmployee(ctx, employee.Employee{ID: "e1", TenantID: "acme", Name: "Ada, Countess", Team: "team-a", Department: "eng"}); err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	if _, err := store.CreateContribution(ctx, contribution.Record{
		TenantID:   "acme",
		EmployeeID: "e1",
		Overall:    87.5,
	}); err != nil {
		t.Fatalf("seed contribution: %v", err)
	}

	path, rows, err := svc.ExportEmployeeMetrics(ctx, "acme")
	if err != nil {
		t.Fatalf("ExportEmployeeMetrics: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row, got %d", rows)
	}
	if filepath.Base(path) != "acme-metrics.csv" {
		t.Fatalf("unexpected export path %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	out := string(data)
	if !strings.HasPrefix(out, "employee_id,name,team,department,") {
		t.Fatalf("missing header in %q", out)
	}
	if !strings.Contains(out, `"Ada, Countess"`) {
		t.Fatalf("comma field not escaped in %q", out)
	}
	if !strings.Contains(out, "87.50") {
		t.Fatalf("score not formatted in %q", out)
	}
}

func TestExportEmployeeMetricsEmptyTenant(t *testing.T) {
	svc, _ := newTestExport(t)

	path, rows, err := svc.ExportEmployeeMetrics(context.Background(), "acme")
	if err != nil {
		t.Fatalf("ExportEmployeeMetrics: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected 0 rows, got %d", rows)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	// Header only.
	if lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n"); len(lines) != 1 {
		t.Fatalf("expected header-only file, got %q", data)
	}
}

func TestAppendContribution(t *testing.T) {
	svc, _ := newTestExport(t)
	ctx := context.Background()

	rec := contribution.Record{
		EmployeeID:     "e1",
		ProblemSolving: 70,
		Collaboration:  80,
		Initiative:     90,
		Overall:        80,
		CalculatedAt:   time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC),
	}
	path, err := svc.AppendContribution(ctx, "acme", &rec)
	if err != nil {
		t.Fatalf("AppendContribution: %v", err)
	}
	if _, err := svc.AppendContribution(ctx, "acme", &rec); err != nil {
		t.Fatalf("AppendContribution again: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.Contains(lines[1], "2026-06-01T09:30:00Z") {
		t.Fatalf("timestamp missing in %q", lines[1])
	}
}
