// Package errs contains sentinel errors and the validation error type used
// across layers for stable error mapping at the HTTP edge.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels shared by repositories, services, and the LLM client.
var (
	// ErrNotFound indicates the requested entity does not exist under the
	// calling owner. Cross-owner access reports this too, never "forbidden".
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication: bad credentials,
	// inactive account, invalid/expired token, or a rejected provider key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates a unique constraint violation (username/email taken).
	ErrConflict = errors.New("already exists")

	// ErrRateLimited indicates throttling, either by the login limiter or by
	// the upstream provider.
	ErrRateLimited = errors.New("rate limited")

	// ErrProvider indicates an upstream LLM failure not covered by a more
	// specific sentinel.
	ErrProvider = errors.New("provider error")

	// ErrProviderTimeout indicates the provider call exceeded its deadline.
	ErrProviderTimeout = errors.New("provider timeout")
)

// FieldViolation names a single invalid input field and why it was rejected.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError carries every violated field of one request, not just the
// first. Build one with NewValidation/Add and return Err() so that a clean
// input yields nil.
type ValidationError struct {
	Violations []FieldViolation
}

// NewValidation starts an empty validation error.
func NewValidation() *ValidationError {
	return &ValidationError{}
}

// Add records a violation and returns the receiver for chaining.
func (e *ValidationError) Add(field, reason string) *ValidationError {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: reason})
	return e
}

// Addf records a violation with a formatted reason.
func (e *ValidationError) Addf(field, format string, args ...any) *ValidationError {
	return e.Add(field, fmt.Sprintf(format, args...))
}

// Err returns nil when no violations were recorded.
func (e *ValidationError) Err() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

// Error joins all violations into one human-readable message.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Validation builds a single-field validation error in one call.
func Validation(field, reason string) error {
	return NewValidation().Add(field, reason).Err()
}

// AsValidation unwraps err into a *ValidationError when it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
