package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a record referenced by id no longer exists.
var ErrNotFound = errors.New("not found")

// ErrStoreUnavailable wraps failures to reach the entity store.
var ErrStoreUnavailable = errors.New("store unavailable")

// ValidationError reports a missing or malformed request field. No state is
// mutated and nothing is broadcast when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
