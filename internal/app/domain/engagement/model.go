package engagement

import "time"

// Interaction is an employee-linked activity event. The analytics engine only
// counts interactions; their payload is opaque to it.
type Interaction struct {
	ID         string
	TenantID   string
	EmployeeID string
	Kind       string
	OccurredAt time.Time
}

// Kudos is a peer recognition event between two employees of the same tenant.
type Kudos struct {
	ID             string
	TenantID       string
	FromEmployeeID string
	ToEmployeeID   string
	Message        string
	CreatedAt      time.Time
}
