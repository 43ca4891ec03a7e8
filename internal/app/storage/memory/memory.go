// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
)

// Store keeps every record in tenant-partitioned maps and slices. Slices
// preserve insertion order so paginated listings are deterministic.
type Store struct {
	mu            sync.RWMutex
	employees     map[string]map[string]employee.Employee
	employeeOrder map[string][]string
	contributions map[string][]contribution.Record
	interactions  map[string][]engagement.Interaction
	kudos         map[string][]engagement.Kudos
}

var _ storage.EmployeeStore = (*Store)(nil)
var _ storage.ContributionStore = (*Store)(nil)
var _ storage.EngagementStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		employees:     make(map[string]map[string]employee.Employee),
		employeeOrder: make(map[string][]string),
		contributions: make(map[string][]contribution.Record),
		interactions:  make(map[string][]engagement.Interaction),
		kudos:         make(map[string][]engagement.Kudos),
	}
}

// --- EmployeeStore ----------------------------------------------------------

func (s *Store) CreateEmployee(ctx context.Context, emp employee.Employee) (employee.Employee, error) {
	if emp.TenantID == "" {
		return employee.Employee{}, fmt.Errorf("tenant_id required")
	}
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	emp.CreatedAt = now
	emp.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.employees[emp.TenantID] == nil {
		s.employees[emp.TenantID] = make(map[string]employee.Employee)
	}
	if _, exists := s.employees[emp.TenantID][emp.ID]; !exists {
		s.employeeOrder[emp.TenantID] = append(s.employeeOrder[emp.TenantID], emp.ID)
	}
	s.employees[emp.TenantID][emp.ID] = emp
	return emp, nil
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, id string) (employee.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[tenantID][id]
	if !ok {
		return employee.Employee{}, storage.ErrNotFound
	}
	return emp, nil
}

func (s *Store) ListEmployees(ctx context.Context, tenantID string, page storage.Page) ([]employee.Employee, int, error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	order := s.employeeOrder[tenantID]
	total := len(order)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	out := make([]employee.Employee, 0, end-page.Offset)
	for _, id := range order[page.Offset:end] {
		out = append(out, s.employees[tenantID][id])
	}
	return out, total, nil
}

// --- ContributionStore ------------------------------------------------------

func (s *Store) CreateContribution(ctx context.Context, rec contribution.Record) (contribution.Record, error) {
	if rec.TenantID == "" || rec.EmployeeID == "" {
		return contribution.Record{}, fmt.Errorf("tenant_id and employee_id required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CalculatedAt.IsZero() {
		rec.CalculatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.contributions[rec.TenantID] = append(s.contributions[rec.TenantID], rec)
	return rec, nil
}

func (s *Store) LatestContribution(ctx context.Context, tenantID, employeeID string) (contribution.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  contribution.Record
		found bool
	)
	for _, rec := range s.contributions[tenantID] {
		if rec.EmployeeID != employeeID {
			continue
		}
		// Equal timestamps resolve to the later insertion.
		if !found || !rec.CalculatedAt.Before(best.CalculatedAt) {
			best = rec
			found = true
		}
	}
	return best, found, nil
}

func (s *Store) ListEmployeeContributions(ctx context.Context, tenantID, employeeID string) ([]contribution.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contribution.Record
	for _, rec := range s.contributions[tenantID] {
		if rec.EmployeeID == employeeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) ListContributions(ctx context.Context, tenantID string, page storage.Page) ([]contribution.Record, int, error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.contributions[tenantID]
	total := len(all)
	if page.Offset >= total {
		return nil, total, nil
	}
	end := page.Offset + page.Limit
	if end > total {
		end = total
	}
	out := make([]contribution.Record, end-page.Offset)
	copy(out, all[page.Offset:end])
	return out, total, nil
}

// --- EngagementStore --------------------------------------------------------

func (s *Store) CreateInteraction(ctx context.Context, in engagement.Interaction) (engagement.Interaction, error) {
	if in.TenantID == "" {
		return engagement.Interaction{}, fmt.Errorf("tenant_id required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[in.TenantID] = append(s.interactions[in.TenantID], in)
	return in, nil
}

func (s *Store) CreateKudos(ctx context.Context, k engagement.Kudos) (engagement.Kudos, error) {
	if k.TenantID == "" {
		return engagement.Kudos{}, fmt.Errorf("tenant_id required")
	}
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.kudos[k.TenantID] = append(s.kudos[k.TenantID], k)
	return k, nil
}

func (s *Store) CountInteractions(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.interactions[tenantID]), nil
}

func (s *Store) CountKudos(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.kudos[tenantID]), nil
}
