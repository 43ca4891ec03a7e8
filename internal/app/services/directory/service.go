// Package directory manages the raw tenant records that the aggregation
// engine reads: employees, contribution scores, and engagement events.
package directory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
	"github.com/pulsehr/analytics_layer/pkg/logger"
)

// Service validates and persists tenant records.
type Service struct {
	employees     storage.EmployeeStore
	contributions storage.ContributionStore
	engagement    storage.EngagementStore
	log           *logger.Logger
}

// New constructs the directory service.
func New(employees storage.EmployeeStore, contributions storage.ContributionStore, engagement storage.EngagementStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("directory")
	}
	return &Service{
		employees:     employees,
		contributions: contributions,
		engagement:    engagement,
		log:           log,
	}
}

// CreateEmployee registers an employee in the tenant.
func (s *Service) CreateEmployee(ctx context.Context, tenantID string, emp employee.Employee) (employee.Employee, error) {
	if strings.TrimSpace(tenantID) == "" {
		return employee.Employee{}, errors.New("tenant id is required")
	}
	if strings.TrimSpace(emp.Name) == "" {
		return employee.Employee{}, errors.New("employee name is required")
	}
	emp.TenantID = tenantID
	now := time.Now().UTC()
	emp.CreatedAt = now
	emp.UpdatedAt = now

	created, err := s.employees.CreateEmployee(ctx, emp)
	if err != nil {
		return employee.Employee{}, fmt.Errorf("create employee: %w", err)
	}
	s.log.WithField("tenant_id", tenantID).WithField("employee_id", created.ID).Info("employee created")
	return created, nil
}

// GetEmployee fetches one employee within the tenant.
func (s *Service) GetEmployee(ctx context.Context, tenantID, id string) (employee.Employee, error) {
	return s.employees.GetEmployee(ctx, tenantID, id)
}

// ListEmployees returns one page of the tenant's employees plus the total.
func (s *Service) ListEmployees(ctx context.Context, tenantID string, page storage.Page) ([]employee.Employee, int, error) {
	return s.employees.ListEmployees(ctx, tenantID, page)
}

// RecordContribution appends a score record for an employee. Scores must lie
// in [0, 100]. A zero overall score is derived as the mean of the three
// dimensions.
func (s *Service) RecordContribution(ctx context.Context, tenantID string, rec contribution.Record) (contribution.Record, error) {
	if strings.TrimSpace(tenantID) == "" {
		return contribution.Record{}, errors.New("tenant id is required")
	}
	if strings.TrimSpace(rec.EmployeeID) == "" {
		return contribution.Record{}, errors.New("employee id is required")
	}
	if _, err := s.employees.GetEmployee(ctx, tenantID, rec.EmployeeID); err != nil {
		return contribution.Record{}, fmt.Errorf("record contribution: %w", err)
	}
	for _, v := range []float64{rec.ProblemSolving, rec.Collaboration, rec.Initiative} {
		if v < 0 || v > 100 {
			return contribution.Record{}, fmt.Errorf("score %v out of range [0, 100]", v)
		}
	}
	if rec.Overall == 0 {
		rec.Overall = math.Round((rec.ProblemSolving+rec.Collaboration+rec.Initiative)/3*100) / 100
	} else if rec.Overall < 0 || rec.Overall > 100 {
		return contribution.Record{}, fmt.Errorf("overall score %v out of range [0, 100]", rec.Overall)
	}
	rec.TenantID = tenantID
	if rec.CalculatedAt.IsZero() {
		rec.CalculatedAt = time.Now().UTC()
	}

	created, err := s.contributions.CreateContribution(ctx, rec)
	if err != nil {
		return contribution.Record{}, fmt.Errorf("record contribution: %w", err)
	}
	return created, nil
}

// RecordInteraction stores one engagement event for an employee.
func (s *Service) RecordInteraction(ctx context.Context, tenantID string, in engagement.Interaction) (engagement.Interaction, error) {
	if strings.TrimSpace(in.EmployeeID) == "" {
		return engagement.Interaction{}, errors.New("employee id is required")
	}
	in.TenantID = tenantID
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}
	created, err := s.engagement.CreateInteraction(ctx, in)
	if err != nil {
		return engagement.Interaction{}, fmt.Errorf("record interaction: %w", err)
	}
	return created, nil
}

// RecordKudos stores one peer recognition event.
func (s *Service) RecordKudos(ctx context.Context, tenantID string, k engagement.Kudos) (engagement.Kudos, error) {
	if strings.TrimSpace(k.FromEmployeeID) == "" || strings.TrimSpace(k.ToEmployeeID) == "" {
		return engagement.Kudos{}, errors.New("both employee ids are required")
	}
	if k.FromEmployeeID == k.ToEmployeeID {
		return engagement.Kudos{}, errors.New("kudos cannot be self-addressed")
	}
	k.TenantID = tenantID
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	created, err := s.engagement.CreateKudos(ctx, k)
	if err != nil {
		return engagement.Kudos{}, fmt.Errorf("record kudos: %w", err)
	}
	return created, nil
}
