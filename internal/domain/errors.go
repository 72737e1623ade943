package domain

import "errors"

// The service surfaces a small, stable set of rejection reasons.
// Internal detail is wrapped around these sentinels, never replaces them.
var (
	// ErrConflict covers lost lock races, fencing mismatches, amount
	// mismatches and transitions out of a terminal state.
	ErrConflict = errors.New("conflict")

	// ErrNotFound covers unknown reservations, seats and queue entries.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable covers an unreachable shared store or downstream
	// collaborator. Writes fail closed with this error.
	ErrUnavailable = errors.New("unavailable")

	ErrUnauthorized = errors.New("unauthorized")
)
