package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
	"github.com/pulsehr/analytics_layer/internal/app/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := memory.New()
	return New(store, store, store, nil)
}

func seedEmployee(t *testing.T, svc *Service, tenant, name string) employee.Employee {
	t.Helper()
	emp, err := svc.CreateEmployee(context.Background(), tenant, employee.Employee{Name: name, Team: "team-a", Department: "eng"})
	if err != nil {
		t.Fatalf("CreateEmployee: %v", err)
	}
	return emp
}

func TestCreateEmployeeValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateEmployee(ctx, "", employee.Employee{Name: "Ada"}); err == nil {
		t.Fatal("expected error for missing tenant")
	}
	if _, err := svc.CreateEmployee(ctx, "acme", employee.Employee{Name: "  "}); err == nil {
		t.Fatal("expected error for blank name")
	}

	emp := seedEmployee(t, svc, "acme", "Ada")
	if emp.ID == "" {
		t.Fatal("expected generated id")
	}
	if emp.TenantID != "acme" {
		t.Fatalf("unexpected tenant %q", emp.TenantID)
	}
	if emp.CreatedAt.IsZero() || emp.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestRecordContributionDerivesOverall(t *testing.T) {
	svc := newTestService(t)
	emp := seedEmployee(t, svc, "acme", "Ada")

	rec, err := svc.RecordContribution(context.Background(), "acme", contribution.Record{
		EmployeeID:     emp.ID,
		ProblemSolving: 70,
		Collaboration:  80,
		Initiative:     91,
	})
	if err != nil {
		t.Fatalf("RecordContribution: %v", err)
	}
	if rec.Overall != 80.33 {
		t.Fatalf("expected derived overall 80.33, got %v", rec.Overall)
	}
	if rec.CalculatedAt.IsZero() {
		t.Fatal("expected calculated_at to be set")
	}
}

func TestRecordContributionKeepsExplicitOverall(t *testing.T) {
	svc := newTestService(t)
	emp := seedEmployee(t, svc, "acme", "Ada")

	rec, err := svc.RecordContribution(context.Background(), "acme", contribution.Record{
		EmployeeID: emp.ID,
		Overall:    42.5,
	})
	if err != nil {
		t.Fatalf("RecordContribution: %v", err)
	}
	if rec.Overall != 42.5 {
		t.Fatalf("expected overall 42.5, got %v", rec.Overall)
	}
}

func TestRecordContributionScoreRange(t *testing.T) {
	svc := newTestService(t)
	emp := seedEmployee(t, svc, "acme", "Ada")
	ctx := context.Background()

	cases := []contribution.Record{
		{EmployeeID: emp.ID, ProblemSolving: -1},
		{EmployeeID: emp.ID, Collaboration: 101},
		{EmployeeID: emp.ID, Overall: 120},
	}
	for _, rec := range cases {
		if _, err := svc.RecordContribution(ctx, "acme", rec); err == nil {
			t.Fatalf("expected range error for %+v", rec)
		}
	}
}

func TestRecordContributionUnknownEmployee(t *testing.T) {
	svc := newTestService(t)
	seedEmployee(t, svc, "acme", "Ada")

	_, err := svc.RecordContribution(context.Background(), "acme", contribution.Record{EmployeeID: "ghost", Overall: 50})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordContributionCrossTenant(t *testing.T) {
	svc := newTestService(t)
	emp := seedEmployee(t, svc, "acme", "Ada")

	_, err := svc.RecordContribution(context.Background(), "globex", contribution.Record{EmployeeID: emp.ID, Overall: 50})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestRecordInteraction(t *testing.T) {
	svc := newTestService(t)
	emp := seedEmployee(t, svc, "acme", "Ada")

	in, err := svc.RecordInteraction(context.Background(), "acme", engagement.Interaction{EmployeeID: emp.ID, Kind: "standup"})
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	if in.OccurredAt.IsZero() {
		t.Fatal("expected occurred_at to be set")
	}

	if _, err := svc.RecordInteraction(context.Background(), "acme", engagement.Interaction{Kind: "standup"}); err == nil {
		t.Fatal("expected error for missing employee id")
	}
}

func TestRecordKudosRejectsSelf(t *testing.T) {
	svc := newTestService(t)
	ada := seedEmployee(t, svc, "acme", "Ada")
	bob := seedEmployee(t, svc, "acme", "Bob")
	ctx := context.Background()

	if _, err := svc.RecordKudos(ctx, "acme", engagement.Kudos{FromEmployeeID: ada.ID, ToEmployeeID: ada.ID}); err == nil {
		t.Fatal("expected self-kudos to be rejected")
	}
	if _, err := svc.RecordKudos(ctx, "acme", engagement.Kudos{FromEmployeeID: ada.ID}); err == nil {
		t.Fatal("expected error for missing recipient")
	}

	k, err := svc.RecordKudos(ctx, "acme", engagement.Kudos{FromEmployeeID: ada.ID, ToEmployeeID: bob.ID, Message: "great review"})
	if err != nil {
		t.Fatalf("RecordKudos: %v", err)
	}
	if k.ID == "" || k.CreatedAt.IsZero() {
		t.Fatalf("expected populated kudos, got %+v", k)
	}
}
