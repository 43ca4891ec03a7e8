// Package analytics implements the tenant-scoped aggregation engine: current
// employee scores, score history, team and department rollups, tenant-wide
// statistics, and the top-contributors ranking.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pulsehr/analytics_layer/internal/app/domain/analytics"
	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
	"github.com/pulsehr/analytics_layer/pkg/logger"
)

// topContributorLimit bounds the ranking returned by TopContributors.
const topContributorLimit = 10

// Service computes metric views from raw tenant records. It holds no mutable
// state; concurrent calls only share the underlying stores.
type Service struct {
	employees     storage.EmployeeStore
	contributions storage.ContributionStore
	engagement    storage.EngagementStore
	log           *logger.Logger
}

// New constructs the aggregation engine.
func New(employees storage.EmployeeStore, contributions storage.ContributionStore, engagement storage.EngagementStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("analytics")
	}
	return &Service{
		employees:     employees,
		contributions: contributions,
		engagement:    engagement,
		log:           log,
	}
}

// EmployeeMetrics returns an employee's identity and most recent scores.
// An employee with no contributions yet gets all-zero scores, not an error.
func (s *Service) EmployeeMetrics(ctx context.Context, tenantID, employeeID string) (analytics.EmployeeMetrics, error) {
	emp, err := s.employees.GetEmployee(ctx, tenantID, employeeID)
	if errors.Is(err, storage.ErrNotFound) {
		return analytics.EmployeeMetrics{}, &NotFoundError{Entity: "employee", ID: employeeID}
	}
	if err != nil {
		return analytics.EmployeeMetrics{}, fmt.Errorf("employee metrics: fetch employee: %w", err)
	}

	latest, ok, err := s.contributions.LatestContribution(ctx, tenantID, employeeID)
	if err != nil {
		return analytics.EmployeeMetrics{}, fmt.Errorf("employee metrics: fetch latest contribution: %w", err)
	}

	metrics := analytics.EmployeeMetrics{
		EmployeeID: emp.ID,
		Name:       emp.Name,
		Team:       emp.Team,
		Department: emp.Department,
	}
	if ok {
		metrics.Scores = scoreSet(latest)
	}
	return metrics, nil
}

// EmployeeHistory returns every contribution for the employee as score
// points sorted ascending by calculation time. Ties keep fetch order. An
// empty history is a valid result.
func (s *Service) EmployeeHistory(ctx context.Context, tenantID, employeeID string) ([]analytics.ScorePoint, error) {
	records, err := s.contributions.ListEmployeeContributions(ctx, tenantID, employeeID)
	if err != nil {
		return nil, fmt.Errorf("employee history: %w", err)
	}

	points := make([]analytics.ScorePoint, 0, len(records))
	for _, rec := range records {
		points = append(points, analytics.ScorePoint{
			CalculatedAt: rec.CalculatedAt,
			Scores:       scoreSet(rec),
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].CalculatedAt.Before(points[j].CalculatedAt)
	})
	return points, nil
}

// TeamMetrics averages the latest scores across one team's employees.
// Members without contributions count toward MemberCount but not the average;
// a team whose members all lack contributions yields all-zero averages.
func (s *Service) TeamMetrics(ctx context.Context, tenantID, team string) (analytics.TeamMetrics, error) {
	members, err := s.groupEmployees(ctx, tenantID, func(e employee.Employee) bool { return e.Team == team })
	if err != nil {
		return analytics.TeamMetrics{}, fmt.Errorf("team metrics: %w", err)
	}
	if len(members) == 0 {
		return analytics.TeamMetrics{}, &NotFoundError{Entity: "team", ID: team}
	}

	avg, err := s.averageLatest(ctx, tenantID, members)
	if err != nil {
		return analytics.TeamMetrics{}, fmt.Errorf("team metrics: %w", err)
	}
	return analytics.TeamMetrics{
		Team:          team,
		MemberCount:   len(members),
		AverageScores: avg,
	}, nil
}

// DepartmentMetrics averages the latest scores across one department and
// reports how many distinct team labels it spans.
func (s *Service) DepartmentMetrics(ctx context.Context, tenantID, department string) (analytics.DepartmentMetrics, error) {
	members, err := s.groupEmployees(ctx, tenantID, func(e employee.Employee) bool { return e.Department == department })
	if err != nil {
		return analytics.DepartmentMetrics{}, fmt.Errorf("department metrics: %w", err)
	}
	if len(members) == 0 {
		return analytics.DepartmentMetrics{}, &NotFoundError{Entity: "department", ID: department}
	}

	teams := make(map[string]struct{})
	for _, m := range members {
		teams[m.Team] = struct{}{}
	}

	avg, err := s.averageLatest(ctx, tenantID, members)
	if err != nil {
		return analytics.DepartmentMetrics{}, fmt.Errorf("department metrics: %w", err)
	}
	return analytics.DepartmentMetrics{
		Department:    department,
		EmployeeCount: len(members),
		TeamCount:     len(teams),
		AverageScores: avg,
	}, nil
}

// OverallStats returns tenant-wide counts and the average across all
// contributions. Every count and the contribution scan are bounded by
// storage.MaxFetch.
func (s *Service) OverallStats(ctx context.Context, tenantID string) (analytics.OverallStats, error) {
	_, totalEmployees, err := s.employees.ListEmployees(ctx, tenantID, storage.Page{Limit: 1})
	if err != nil {
		return analytics.OverallStats{}, fmt.Errorf("overall stats: count employees: %w", err)
	}

	interactions, err := s.engagement.CountInteractions(ctx, tenantID)
	if err != nil {
		return analytics.OverallStats{}, fmt.Errorf("overall stats: count interactions: %w", err)
	}
	kudos, err := s.engagement.CountKudos(ctx, tenantID)
	if err != nil {
		return analytics.OverallStats{}, fmt.Errorf("overall stats: count kudos: %w", err)
	}

	records, err := storage.CollectPages(ctx, func(ctx context.Context, page storage.Page) ([]contribution.Record, int, error) {
		return s.contributions.ListContributions(ctx, tenantID, page)
	}, storage.DefaultPageSize, storage.MaxFetch)
	if err != nil {
		return analytics.OverallStats{}, fmt.Errorf("overall stats: fetch contributions: %w", err)
	}

	var sum analytics.ScoreSet
	for _, rec := range records {
		sum.ProblemSolving += rec.ProblemSolving
		sum.Collaboration += rec.Collaboration
		sum.Initiative += rec.Initiative
		sum.Overall += rec.Overall
	}

	stats := analytics.OverallStats{
		TotalEmployees:    capCount(totalEmployees),
		TotalInteractions: capCount(interactions),
		TotalKudos:        capCount(kudos),
	}
	if n := len(records); n > 0 {
		stats.AverageScores = analytics.ScoreSet{
			ProblemSolving: round2(sum.ProblemSolving / float64(n)),
			Collaboration:  round2(sum.Collaboration / float64(n)),
			Initiative:     round2(sum.Initiative / float64(n)),
			Overall:        round2(sum.Overall / float64(n)),
		}
	}
	return stats, nil
}

// AllEmployeeMetrics returns current metrics for every employee in the
// tenant, in employee fetch order. It backs the tabular export.
func (s *Service) AllEmployeeMetrics(ctx context.Context, tenantID string) ([]analytics.EmployeeMetrics, error) {
	employees, err := s.allEmployees(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("all employee metrics: %w", err)
	}

	rows := make([]analytics.EmployeeMetrics, 0, len(employees))
	for _, emp := range employees {
		latest, ok, err := s.contributions.LatestContribution(ctx, tenantID, emp.ID)
		if err != nil {
			return nil, fmt.Errorf("all employee metrics: fetch latest for %s: %w", emp.ID, err)
		}
		m := analytics.EmployeeMetrics{
			EmployeeID: emp.ID,
			Name:       emp.Name,
			Team:       emp.Team,
			Department: emp.Department,
		}
		if ok {
			m.Scores = scoreSet(latest)
		}
		rows = append(rows, m)
	}
	return rows, nil
}

// TopContributors ranks every employee by their latest overall score,
// descending, and returns the top ten. Employees without contributions rank
// with score zero. Equal scores keep employee fetch order.
func (s *Service) TopContributors(ctx context.Context, tenantID string) ([]analytics.TopContributor, error) {
	employees, err := s.allEmployees(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("top contributors: %w", err)
	}

	ranking := make([]analytics.TopContributor, 0, len(employees))
	for _, emp := range employees {
		latest, ok, err := s.contributions.LatestContribution(ctx, tenantID, emp.ID)
		if err != nil {
			return nil, fmt.Errorf("top contributors: fetch latest for %s: %w", emp.ID, err)
		}
		entry := analytics.TopContributor{
			EmployeeID: emp.ID,
			Name:       emp.Name,
			Team:       emp.Team,
			Department: emp.Department,
		}
		if ok {
			entry.Overall = latest.Overall
		}
		ranking = append(ranking, entry)
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Overall > ranking[j].Overall
	})
	if len(ranking) > topContributorLimit {
		ranking = ranking[:topContributorLimit]
	}
	return ranking, nil
}

// --- internals --------------------------------------------------------------

// allEmployees drains the tenant's employee listing under the fetch cap.
func (s *Service) allEmployees(ctx context.Context, tenantID string) ([]employee.Employee, error) {
	return storage.CollectPages(ctx, func(ctx context.Context, page storage.Page) ([]employee.Employee, int, error) {
		return s.employees.ListEmployees(ctx, tenantID, page)
	}, storage.DefaultPageSize, storage.MaxFetch)
}

func (s *Service) groupEmployees(ctx context.Context, tenantID string, match func(employee.Employee) bool) ([]employee.Employee, error) {
	all, err := s.allEmployees(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var members []employee.Employee
	for _, e := range all {
		if match(e) {
			members = append(members, e)
		}
	}
	return members, nil
}

// averageLatest computes the mean latest scores across members. Members with
// no contributions are excluded from the mean; if nobody has contributed the
// result is all zeros.
func (s *Service) averageLatest(ctx context.Context, tenantID string, members []employee.Employee) (analytics.ScoreSet, error) {
	var (
		sum   analytics.ScoreSet
		count int
	)
	for _, m := range members {
		latest, ok, err := s.contributions.LatestContribution(ctx, tenantID, m.ID)
		if err != nil {
			return analytics.ScoreSet{}, fmt.Errorf("fetch latest for %s: %w", m.ID, err)
		}
		if !ok {
			continue
		}
		sum.ProblemSolving += latest.ProblemSolving
		sum.Collaboration += latest.Collaboration
		sum.Initiative += latest.Initiative
		sum.Overall += latest.Overall
		count++
	}
	if count == 0 {
		return analytics.ScoreSet{}, nil
	}
	n := float64(count)
	return analytics.ScoreSet{
		ProblemSolving: round2(sum.ProblemSolving / n),
		Collaboration:  round2(sum.Collaboration / n),
		Initiative:     round2(sum.Initiative / n),
		Overall:        round2(sum.Overall / n),
	}, nil
}

func scoreSet(rec contribution.Record) analytics.ScoreSet {
	return analytics.ScoreSet{
		ProblemSolving: rec.ProblemSolving,
		Collaboration:  rec.Collaboration,
		Initiative:     rec.Initiative,
		Overall:        rec.Overall,
	}
}

// round2 rounds to two decimal places, halves away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func capCount(n int) int {
	if n > storage.MaxFetch {
		return storage.MaxFetch
	}
	return n
}
