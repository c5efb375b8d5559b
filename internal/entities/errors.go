package entities

import "errors"

// Error kinds returned by the engine and the entity store. Callers match them with errors.Is.
var (
	// ErrInvalidInput marks a malformed or out-of-range entity field. Nothing is applied.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition marks an illegal report state or urgency change.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConstraintUnsatisfiable marks a member the optimizer could not place in any group.
	ErrConstraintUnsatisfiable = errors.New("constraint unsatisfiable")

	// ErrNotFound is returned by the store when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned by the store when a concurrent writer updated the record first.
	ErrVersionConflict = errors.New("version conflict")
)
