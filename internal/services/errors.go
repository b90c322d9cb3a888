// Package services coordinates dashboard intents: it dispatches the begin
// action, calls the upstream API, and dispatches exactly one terminal outcome
// per intent. This file centralizes service-level error values so callers can
// check them with errors.Is and map them to HTTP status codes.
package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation is wrapped by every ValidationError. Nothing is sent
	// upstream when a submission fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrSubmissionInFlight is returned when a create with the same
	// idempotency key is still running.
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrEmptyID is returned when an intent needs a record id and got none.
	ErrEmptyID = errors.New("record id is empty")
)

// FieldErrors maps a submission field to a human-readable problem.
type FieldErrors map[string]string

// ValidationError reports the fields that blocked a submission.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
