package accounts

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdentity is returned by Signup when the identity is taken.
	ErrDuplicateIdentity = errors.New("identity already taken")
	// ErrInvalidCredentials covers both an unknown identity and a wrong
	// credential, so callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingFields is the target every ValidationError unwraps to.
	ErrMissingFields = errors.New("missing required fields")
)

// ValidationError reports a missing, empty or malformed required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrMissingFields
}

// IsClientError reports whether err is one the caller can correct, as opposed
// to a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrDuplicateIdentity)
}
