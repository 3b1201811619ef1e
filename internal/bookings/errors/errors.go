package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	ErrEmployeeNotFound = errors.New("employee not found")

	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrConflict means another request reserved the chosen vehicle for an
	// overlapping interval first. Transient: a different candidate may work.
	ErrConflict = errors.New("vehicle was booked concurrently")

	ErrNoCandidates = errors.New("no candidate vehicles")

	// ErrWriteConflict is how stores report that a concurrent transaction
	// touched the same rows. Only the allocator interprets it.
	ErrWriteConflict = errors.New("concurrent write conflict")
)
