package service

import (
	"context"
	"errors"
	bookingserrors "fleetbook/internal/bookings/errors"
	apperrors "fleetbook/pkg/errors"
	"fleetbook/pkg/model"
)

type Outcome int

const (
	OutcomeBooked Outcome = iota
	OutcomeInvalidRequest
	OutcomeEmployeeNotFound
	OutcomeNoAvailability
	OutcomeStorageUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBooked:
		return "booked"
	case OutcomeInvalidRequest:
		return "invalid_request"
	case OutcomeEmployeeNotFound:
		return "employee_not_found"
	case OutcomeNoAvailability:
		return "no_availability"
	case OutcomeStorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// Result is what BookVehicle hands back. Booking is set only when Outcome is
// OutcomeBooked.
type Result struct {
	Outcome Outcome
	Booking *model.Booking
}

// OutcomeOf classifies an error returned by BookVehicle.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeBooked
	}
	switch {
	case apperrors.HasCode(err, apperrors.CodeInvalidRequest):
		return OutcomeInvalidRequest
	case apperrors.HasCode(err, apperrors.CodeEmployeeNotFound):
		return OutcomeEmployeeNotFound
	case apperrors.HasCode(err, apperrors.CodeNoAvailability):
		return OutcomeNoAvailability
	default:
		return OutcomeStorageUnavailable
	}
}

const (
	msgNoAvailability = "No vehicle is available for the requested interval"
	msgLostRace       = "The available vehicle was booked by a concurrent request"
)

// toAppError maps internal errors onto the public outcome taxonomy. It is
// the only place user-facing messages are produced.
func toAppError(err error, employeeID int64) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, bookingserrors.ErrEmployeeNotFound):
		return apperrors.EmployeeNotFound(employeeID)
	case errors.Is(err, bookingserrors.ErrNoCandidates):
		return apperrors.NoAvailability(msgNoAvailability)
	case errors.Is(err, bookingserrors.ErrConflict):
		return apperrors.NoAvailability(msgLostRace)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.StorageUnavailable(err).WithDetails(map[string]any{"reason": "request deadline reached before commit"})
	default:
		return apperrors.StorageUnavailable(err)
	}
}
