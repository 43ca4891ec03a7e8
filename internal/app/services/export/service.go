package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/services/analytics"
	"github.com/pulsehr/analytics_layer/pkg/logger"
)

var metricsHeader = []string{
	"employee_id", "name", "team", "department",
	"problem_solving", "collaboration", "initiative", "overall_score",
}

var contributionHeader = []string{
	"employee_id", "problem_solving", "collaboration", "initiative",
	"overall_score", "calculated_at",
}

// Service exports tenant analytics to CSV files under a shared directory.
type Service struct {
	dir       string
	analytics *analytics.Service
	writer    *TabularWriter
	log       *logger.Logger
}

// New builds the export service and ensures the output directory exists.
func New(dir string, svc *analytics.Service, writer *TabularWriter, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewDefault("export")
	}
	if writer == nil {
		writer = NewTabularWriter(log)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create export dir %s: %w", dir, err)
	}
	return &Service{dir: dir, analytics: svc, writer: writer, log: log}, nil
}

// ExportEmployeeMetrics writes the current metrics of every employee in the
// tenant to "<dir>/<tenant>-metrics.csv", replacing any previous export.
// It returns the path written and the number of data rows.
func (s *Service) ExportEmployeeMetrics(ctx context.Context, tenantID string) (string, int, error) {
	rows, err := s.analytics.AllEmployeeMetrics(ctx, tenantID)
	if err != nil {
		return "", 0, err
	}

	records := make([][]string, 0, len(rows))
	for _, m := range rows {
		records = append(records, []string{
			m.EmployeeID,
			m.Name,
			m.Team,
			m.Department,
			formatScore(m.Scores.ProblemSolving),
			formatScore(m.Scores.Collaboration),
			formatScore(m.Scores.Initiative),
			formatScore(m.Scores.Overall),
		})
	}

	path := filepath.Join(s.dir, tenantID+"-metrics.csv")
	if err := s.writer.WriteAll(ctx, path, metricsHeader, records, false); err != nil {
		return "", 0, err
	}

	s.log.WithField("tenant_id", tenantID).
		WithField("path", path).
		WithField("rows", len(records)).
		Info("exported employee metrics")
	return path, len(records), nil
}

// AppendContribution appends one score record to the tenant's running
// contribution log at "<dir>/<tenant>-contributions.csv".
func (s *Service) AppendContribution(ctx context.Context, tenantID string, rec *contribution.Record) (string, error) {
	path := filepath.Join(s.dir, tenantID+"-contributions.csv")
	row := []string{
		rec.EmployeeID,
		formatScore(rec.ProblemSolving),
		formatScore(rec.Collaboration),
		formatScore(rec.Initiative),
		formatScore(rec.Overall),
		rec.CalculatedAt.UTC().Format(time.RFC3339),
	}
	if err := s.writer.AppendOne(ctx, path, contributionHeader, row); err != nil {
		return "", err
	}
	return path, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
