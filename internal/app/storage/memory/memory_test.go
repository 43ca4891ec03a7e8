package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
)

func TestEmployeeTenantIsolation(t *testing.T) {
	store := New()
	ctx := context.Background()

	created, err := store.CreateEmployee(ctx, employee.Employee{TenantID: "acme", Name: "Ada"})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}

	if _, err := store.GetEmployee(ctx, "globex", created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong tenant, got %v", err)
	}

	items, total, err := store.ListEmployees(ctx, "globex", storage.Page{})
	if err != nil {
		t.Fatalf("ListEmployees: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Fatalf("tenant leak: total=%d items=%d", total, len(items))
	}
}

func TestCreateEmployeeRequiresTenant(t *testing.T) {
	store := New()
	if _, err := store.CreateEmployee(context.Background(), employee.Employee{Name: "Ada"}); err == nil {
		t.Fatal("expected error for missing tenant")
	}
}

func TestListEmployeesPagination(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := store.CreateEmployee(ctx, employee.Employee{
			ID:       fmt.Sprintf("e%d", i),
			TenantID: "acme",
			Name:     fmt.Sprintf("Emp %d", i),
		}); err != nil {
			t.Fatalf("CreateEmployee: %v", err)
		}
	}

	items, total, err := store.ListEmployees(ctx, "acme", storage.Page{Offset: 5, Limit: 3})
	if err != nil {
		t.Fatalf("ListEmployees: %v", err)
	}
	if total != 7 {
		t.Fatalf("expected total 7, got %d", total)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items in last page, got %d", len(items))
	}
	if items[0].ID != "e5" || items[1].ID != "e6" {
		t.Fatalf("unexpected page order: %v, %v", items[0].ID, items[1].ID)
	}

	items, total, err = store.ListEmployees(ctx, "acme", storage.Page{Offset: 100})
	if err != nil {
		t.Fatalf("ListEmployees past end: %v", err)
	}
	if total != 7 || len(items) != 0 {
		t.Fatalf("expected empty page with total 7, got total=%d items=%d", total, len(items))
	}
}

func TestLatestContributionTieBreak(t *testing.T) {
	store := New()
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.CreateContribution(ctx, contribution.Record{TenantID: "acme", EmployeeID: "e1", Overall: 10, CalculatedAt: at}); err != nil {
		t.Fatalf("CreateContribution: %v", err)
	}
	if _, err := store.CreateContribution(ctx, contribution.Record{TenantID: "acme", EmployeeID: "e1", Overall: 20, CalculatedAt: at}); err != nil {
		t.Fatalf("CreateContribution: %v", err)
	}

	rec, ok, err := store.LatestContribution(ctx, "acme", "e1")
	if err != nil {
		t.Fatalf("LatestContribution: %v", err)
	}
	if !ok {
		t.Fatal("expected a record")
	}
	// Equal timestamps resolve to the later insertion.
	if rec.Overall != 20 {
		t.Fatalf("expected later insertion to win, got overall %v", rec.Overall)
	}
}

func TestLatestContributionAbsent(t *testing.T) {
	store := New()
	_, ok, err := store.LatestContribution(context.Background(), "acme", "e1")
	if err != nil {
		t.Fatalf("LatestContribution: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for employee with no contributions")
	}
}

func TestEngagementCounts(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := store.CreateInteraction(ctx, engagement.Interaction{TenantID: "acme", EmployeeID: "e1", Kind: "standup"}); err != nil {
			t.Fatalf("CreateInteraction: %v", err)
		}
	}
	if _, err := store.CreateInteraction(ctx, engagement.Interaction{TenantID: "globex", EmployeeID: "e9", Kind: "standup"}); err != nil {
		t.Fatalf("CreateInteraction: %v", err)
	}

	n, err := store.CountInteractions(ctx, "acme")
	if err != nil {
		t.Fatalf("CountInteractions: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 interactions, got %d", n)
	}
}
