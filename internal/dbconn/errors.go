package dbconn

import (
	"fmt"

	"github.com/dstreev/hms-mirror-sub000/model"
)

// ConnectivityError wraps failures to acquire a connection or run a statement.
type ConnectivityError struct {
	Environment model.Environment
	Op          string
	Err         error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%v: %v failed: %v", e.Environment, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}
