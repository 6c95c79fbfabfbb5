package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Delete/Edit for an unknown job id.
var ErrNotFound = errors.New("job not found")

// ValidationError rejects a malformed create/edit request synchronously;
// nothing is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
