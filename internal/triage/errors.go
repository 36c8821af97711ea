package triage

import (
	"errors"
	"fmt"
)

// NoMatchMessage is shown to the user when no reference record matches.
const NoMatchMessage = "No matching record found. Please contact a vet for urgent advice."

// StoreUnavailableMessage is shown to the user when the reference store cannot be queried.
const StoreUnavailableMessage = "Could not check database. Please try again or contact a vet."

var (
	// ErrInvalidInput marks input rejected before any store query.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable marks a reference store failure. Callers may retry.
	ErrStoreUnavailable = errors.New("reference store unavailable")
)

// ValidationError describes a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is reports ErrInvalidInput so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// StoreError wraps a failed reference store query.
type StoreError struct {
	Collection string
	Tier       Tier
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("query %s (%s): %v", e.Collection, e.Tier, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports ErrStoreUnavailable so callers can use errors.Is.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
