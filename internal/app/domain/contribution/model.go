package contribution

import "time"

// Record is one timestamped set of performance scores for an employee.
// Records are append-only; multiple records per employee accumulate over time
// and the newest CalculatedAt wins for "current" score queries.
type Record struct {
	ID             string
	TenantID       string
	EmployeeID     string
	ProblemSolving float64
	Collaboration  float64
	Initiative     float64
	Overall        float64
	CalculatedAt   time.Time
}
