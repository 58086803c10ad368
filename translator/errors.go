package translator

import (
	"fmt"
)

// MissingConfigurationError is returned when no rule says where a location should go.
type MissingConfigurationError struct {
	Database string
	Table    string
	Reason   string
}

func (e *MissingConfigurationError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("missing configuration for database %v: %v", e.Database, e.Reason)
	}
	return fmt.Sprintf("missing configuration for table %v.%v: %v", e.Database, e.Table, e.Reason)
}

// LocationMismatchError is returned in strict mode when a location is outside the source namespace.
type LocationMismatchError struct {
	Location  string
	Namespace string
}

func (e *LocationMismatchError) Error() string {
	return fmt.Sprintf("location %v does not start with the configured namespace %v", e.Location, e.Namespace)
}
