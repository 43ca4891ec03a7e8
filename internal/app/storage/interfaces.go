// Package storage defines the tenant-scoped persistence contracts consumed by
// the analytics engine. Every method takes the tenant identifier explicitly;
// implementations must filter on it and may never return records belonging to
// another tenant.
package storage

import (
	"context"
	"errors"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
)

// ErrNotFound is returned when a requested record does not exist within the
// given tenant. Adapters map their native miss conditions (sql.ErrNoRows,
// empty REST result) to this sentinel.
var ErrNotFound = errors.New("record not found")

// EmployeeStore persists employee records.
type EmployeeStore interface {
	CreateEmployee(ctx context.Context, emp employee.Employee) (employee.Employee, error)
	GetEmployee(ctx context.Context, tenantID, id string) (employee.Employee, error)
	// ListEmployees returns one page plus the tenant's total employee count.
	ListEmployees(ctx context.Context, tenantID string, page Page) ([]employee.Employee, int, error)
}

// ContributionStore persists append-only contribution records.
type ContributionStore interface {
	CreateContribution(ctx context.Context, rec contribution.Record) (contribution.Record, error)
	// LatestContribution returns the newest record by CalculatedAt for the
	// employee, or ok=false when the employee has none. Absence is not an
	// error: a brand-new employee legitimately has no contributions yet.
	LatestContribution(ctx context.Context, tenantID, employeeID string) (contribution.Record, bool, error)
	// ListEmployeeContributions returns every record for one employee in
	// storage order.
	ListEmployeeContributions(ctx context.Context, tenantID, employeeID string) ([]contribution.Record, error)
	// ListContributions returns one page of the tenant's contributions plus
	// the total count.
	ListContributions(ctx context.Context, tenantID string, page Page) ([]contribution.Record, int, error)
}

// EngagementStore persists interaction and kudos events. The analytics engine
// only ever counts them.
type EngagementStore interface {
	CreateInteraction(ctx context.Context, in engagement.Interaction) (engagement.Interaction, error)
	CreateKudos(ctx context.Context, k engagement.Kudos) (engagement.Kudos, error)
	CountInteractions(ctx context.Context, tenantID string) (int, error)
	CountKudos(ctx context.Context, tenantID string) (int, error)
}
