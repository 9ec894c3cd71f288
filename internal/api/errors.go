// ABOUTME: Error taxonomy for REST calls made by the chat client core
// ABOUTME: Distinguishes retry-eligible transient failures from fatal auth failures

package api

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the server reports a missing entity.
var ErrNotFound = errors.New("not found")

// TransientError wraps a failure that is retry-eligible: network errors,
// timeouts and 5xx responses. Reads that hit one degrade to cached data.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// AuthError indicates the credential was rejected. It is fatal to the
// session: callers must force a re-login flow, never silently retry.
type AuthError struct {
	Op     string
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication rejected (status %d)", e.Op, e.Status)
}

// IsTransient reports whether err is retry-eligible.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsAuth reports whether err means the credential is no longer valid.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
