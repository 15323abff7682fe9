package workflow

import (
	"errors"
	"fmt"
)

// Error taxonomy. Validation and consistency errors abort their stage with
// no retry; gateway errors have already exhausted the client's retry budget
// by the time they surface here. Quality shortfalls are never errors — they
// become decision records.
var (
	ErrValidation  = errors.New("validation error")
	ErrConsistency = errors.New("data consistency error")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func consistencyErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConsistency}, args...)...)
}
