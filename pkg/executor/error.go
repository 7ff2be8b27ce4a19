package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ExecError wraps provider errors with status metadata.
type ExecError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *ExecError) Error() string {
	if e == nil {
		return "executor error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("executor error (status=%d)", e.Status)
}

func (e *ExecError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to treat as a
// temporary availability problem rather than a hard fault.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		if execErr.Temporary {
			return true
		}
		if execErr.Status == 429 || (execErr.Status >= 500 && execErr.Status <= 599) {
			return true
		}
	}
	return false
}
