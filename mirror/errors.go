package mirror

import (
	"fmt"

	"github.com/dstreev/hms-mirror-sub000/model"
)

// ValidationWarning is a recoverable gap in a table plan. The table ends in CALCULATED_SQL_WARNING.
type ValidationWarning struct {
	Environment model.Environment
	Message     string
}

func (w *ValidationWarning) Error() string {
	return fmt.Sprintf("%v: %v", w.Environment, w.Message)
}

func warn(env model.Environment, format string, args ...interface{}) *ValidationWarning {
	return &ValidationWarning{Environment: env, Message: fmt.Sprintf(format, args...)}
}
