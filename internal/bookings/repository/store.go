package repository

import (
	"context"
	"fmt"
	"fleetbook/pkg/config"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/model"
	"time"
)

// Page bounds a booking listing. A nil *Page returns every match.
type Page struct {
	Limit  int
	Offset int64
}

// Store is the record store the booking core works against. Vehicles come
// back ordered by id ascending; bookings by start time, then id.
//
// Calls made with the ctx handed to an ExecuteTransaction callback run inside
// that transaction.
type Store interface {
	// FindEmployee returns bookingserrors.ErrEmployeeNotFound for unknown ids.
	FindEmployee(ctx context.Context, id int64) (*model.Employee, error)
	FindVehicles(ctx context.Context, f filter.Filter) ([]*model.Vehicle, error)
	FindBookings(ctx context.Context, f filter.Filter, page *Page) ([]*model.Booking, error)
	CountBookings(ctx context.Context, f filter.Filter) (int64, error)
	// FindBookingByID returns bookingserrors.ErrNotFound for unknown ids.
	FindBookingByID(ctx context.Context, id string) (*model.Booking, error)
	// InsertBooking returns bookingserrors.ErrWriteConflict when the store
	// itself detects an overlapping booking for the vehicle.
	InsertBooking(ctx context.Context, booking *model.Booking) error
	// GuardVehicle serializes concurrent commits on one vehicle. It must be
	// called inside ExecuteTransaction before the overlap re-check.
	GuardVehicle(ctx context.Context, vehicleID int64) error
	ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
}

// ReferenceWriter loads vehicles and employees. The booking flow never calls
// it; the migrate command uses it to seed fixtures.
type ReferenceWriter interface {
	UpsertEmployee(ctx context.Context, employee *model.Employee) error
	UpsertVehicle(ctx context.Context, vehicle *model.Vehicle) error
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewStore builds the store selected by cfg.StoreBackend. Connections must
// already be open (see config.Connect).
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		return NewMongoStore(cfg), nil
	case config.StorePostgres:
		return NewPostgresStore(cfg), nil
	case config.StoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
