package analytics

import (
	"errors"
	"fmt"
)

// NotFoundError reports that the entity a metric was requested for does not
// exist within the tenant (or, for group rollups, that the group is empty).
type NotFoundError struct {
	Entity string // "employee", "team", "department"
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
