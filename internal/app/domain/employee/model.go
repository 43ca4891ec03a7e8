package employee

import "time"

// Employee is a person record scoped to one tenant. The aggregation engine
// treats employees as read-only; administrative operations own the lifecycle.
type Employee struct {
	ID         string
	TenantID   string
	Name       string
	Team       string
	Department string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
