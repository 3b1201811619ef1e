package service

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "fleetbook/internal/bookings/errors"
	"fleetbook/internal/bookings/repository"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/lock"
	"fleetbook/pkg/logger"
	"fleetbook/pkg/model"

	"github.com/google/uuid"
)

type Allocator struct {
	store  repository.Store
	locker lock.Locker
	log    *logger.Logger
}

func NewAllocator(store repository.Store, locker lock.Locker, log *logger.Logger) *Allocator {
	if locker == nil {
		locker = lock.Noop()
	}
	return &Allocator{store: store, locker: locker, log: log}
}

func VehicleLockKey(vehicleID int64) string {
	return fmt.Sprintf("vehicle:%d", vehicleID)
}

// Allocate commits a booking for the first candidate. Losing a race for it
// returns bookingserrors.ErrConflict and leaves nothing behind.
//
// The commit holds the vehicle's advisory lock, guards the vehicle inside the
// store transaction, re-checks for an overlapping booking and only then
// inserts.
func (a *Allocator) Allocate(ctx context.Context, employeeID int64, candidates []*model.Vehicle, interval model.Interval) (*model.Booking, error) {
	if len(candidates) == 0 {
		return nil, bookingserrors.ErrNoCandidates
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vehicle := candidates[0]
	booking := &model.Booking{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		VehicleID:  vehicle.ID,
		StartTime:  interval.Start.UTC(),
		EndTime:    interval.End.UTC(),
	}

	lease, err := a.locker.Acquire(ctx, VehicleLockKey(vehicle.ID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, fmt.Errorf("%w: vehicle %d is locked by another request", bookingserrors.ErrConflict, vehicle.ID)
		}
		return nil, fmt.Errorf("acquire vehicle lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("Failed to release vehicle lock", "vehicle_id", vehicle.ID, "error", err)
		}
	}()

	err = a.store.ExecuteTransaction(ctx, func(txCtx context.Context) error {
		if err := a.store.GuardVehicle(txCtx, vehicle.ID); err != nil {
			return err
		}

		sameVehicle := model.OverlappingBookings(interval).With(filter.Eq(model.BookingVehicleID, vehicle.ID))
		existing, err := a.store.FindBookings(txCtx, sameVehicle, &repository.Page{Limit: 1})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("%w: vehicle %d already booked by %s", bookingserrors.ErrConflict, vehicle.ID, existing[0].ID)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		return a.store.InsertBooking(txCtx, booking)
	})
	if err != nil {
		return nil, translateCommitError(err)
	}

	return booking, nil
}

// translateCommitError folds every way a store can report a lost race into
// ErrConflict.
func translateCommitError(err error) error {
	switch {
	case errors.Is(err, bookingserrors.ErrConflict):
		return err
	case errors.Is(err, bookingserrors.ErrWriteConflict), errors.Is(err, bookingserrors.ErrVehicleNotFound):
		return fmt.Errorf("%w: %v", bookingserrors.ErrConflict, err)
	default:
		return err
	}
}
