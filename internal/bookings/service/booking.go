package service

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "fleetbook/internal/bookings/errors"
	"fleetbook/internal/bookings/events"
	"fleetbook/internal/bookings/repository"
	"fleetbook/internal/bookings/validator"
	"fleetbook/pkg/config"
	apperrors "fleetbook/pkg/errors"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/lock"
	"fleetbook/pkg/model"
	"sync"
	"time"
)

type BookingService interface {
	BookVehicle(ctx context.Context, employeeID int64, start, end time.Time) (*Result, error)
	FindAvailable(ctx context.Context, employeeID int64, start, end time.Time) ([]*model.Vehicle, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListEmployeeBookings(ctx context.Context, employeeID int64, limit int, offset int64) ([]*model.Booking, int64, error)
}

type bookingService struct {
	store     repository.Store
	resolver  *AvailabilityResolver
	allocator *Allocator
	publisher events.Publisher
	validator *validator.BookingValidator
	cfg       *config.Config
}

func NewBookingService(
	store repository.Store,
	locker lock.Locker,
	publisher events.Publisher,
	validator *validator.BookingValidator,
	cfg *config.Config,
) BookingService {
	if publisher == nil {
		publisher = events.Noop()
	}
	return &bookingService{
		store:     store,
		resolver:  NewAvailabilityResolver(store, NewEligibilityFilter(store)),
		allocator: NewAllocator(store, locker, cfg.Log),
		publisher: publisher,
		validator: validator,
		cfg:       cfg,
	}
}

// BookVehicle reserves one vehicle for the employee. The returned error is an
// *apperrors.AppError whose code names the outcome; Result.Outcome carries
// the same classification.
func (s *bookingService) BookVehicle(ctx context.Context, employeeID int64, start, end time.Time) (*Result, error) {
	req := &model.BookingRequest{EmployeeID: employeeID, StartTime: start, EndTime: end}
	if err := s.validate(req); err != nil {
		return &Result{Outcome: OutcomeInvalidRequest}, err
	}
	interval := req.Interval()

	booking, err := s.allocate(ctx, employeeID, interval)
	if err != nil {
		appErr := toAppError(err, employeeID)
		outcome := OutcomeOf(appErr)
		if outcome == OutcomeStorageUnavailable {
			s.cfg.Log.Error("Booking failed", "employee_id", employeeID, "interval", interval.String(), "error", err)
		} else {
			s.cfg.Log.Info("Booking not made", "employee_id", employeeID, "interval", interval.String(), "outcome", outcome.String(), "reason", err.Error())
		}
		return &Result{Outcome: outcome}, appErr
	}

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"employee_id", booking.EmployeeID,
		"vehicle_id", booking.VehicleID,
		"start_time", booking.StartTime,
		"end_time", booking.EndTime,
	)
	s.publisher.BookingCreated(ctx, booking)

	return &Result{Outcome: OutcomeBooked, Booking: booking}, nil
}

// allocate resolves candidates and commits, retrying against a freshly
// resolved candidate list after a lost race, up to AllocationMaxAttempts.
func (s *bookingService) allocate(ctx context.Context, employeeID int64, interval model.Interval) (*model.Booking, error) {
	maxAttempts := max(s.cfg.AllocationMaxAttempts, 1)
	var lost []int64

	for attempt := 1; ; attempt++ {
		candidates, err := s.resolver.findAvailable(ctx, employeeID, interval, lost)
		if err != nil {
			return nil, err
		}

		booking, err := s.allocator.Allocate(ctx, employeeID, candidates, interval)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, bookingserrors.ErrConflict) {
			return nil, err
		}

		s.cfg.Log.Warn("Lost booking race",
			"employee_id", employeeID,
			"vehicle_id", candidates[0].ID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)
		if attempt >= maxAttempts {
			return nil, err
		}
		lost = append(lost, candidates[0].ID)
	}
}

func (s *bookingService) FindAvailable(ctx context.Context, employeeID int64, start, end time.Time) ([]*model.Vehicle, error) {
	req := &model.BookingRequest{EmployeeID: employeeID, StartTime: start, EndTime: end}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	vehicles, err := s.resolver.FindAvailable(ctx, employeeID, req.Interval())
	if err != nil {
		s.cfg.Log.Warn("Failed to resolve available vehicles", "employee_id", employeeID, "error", err)
		return nil, toAppError(err, employeeID)
	}
	return vehicles, nil
}

func (s *bookingService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidRequest("Booking ID cannot be empty", nil)
	}

	booking, err := s.store.FindBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) || errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		s.cfg.Log.Error("Failed to retrieve booking", "id", id, "error", err)
		return nil, apperrors.StorageUnavailable(err)
	}
	return booking, nil
}

func (s *bookingService) ListEmployeeBookings(ctx context.Context, employeeID int64, limit int, offset int64) ([]*model.Booking, int64, error) {
	if employeeID <= 0 {
		return nil, 0, apperrors.InvalidRequest("employee_id must be a positive integer", map[string]any{"employee_id": employeeID})
	}

	byEmployee := filter.And(filter.Eq(model.BookingEmployeeID, employeeID))

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.store.CountBookings(ctx, byEmployee)
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.store.FindBookings(ctx, byEmployee, &repository.Page{Limit: limit, Offset: offset})
	}()

	wg.Wait()
	if err := errors.Join(errCount, errFind); err != nil {
		s.cfg.Log.Error("Failed to list employee bookings", "employee_id", employeeID, "error", err)
		return nil, 0, apperrors.StorageUnavailable(err)
	}

	return bookings, count, nil
}

func (s *bookingService) validate(req *model.BookingRequest) error {
	err := s.validator.Validate(req)
	if err == nil {
		return nil
	}

	s.cfg.Log.Warn("Booking request validation failed", "employee_id", req.EmployeeID, "error", err)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.InvalidRequest("Invalid booking request", verrs.Details())
	}
	return apperrors.InvalidRequest(fmt.Sprintf("Invalid booking request: %v", err), nil)
}
