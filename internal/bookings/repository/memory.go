package repository

import (
	"cmp"
	"context"
	"fmt"
	bookingserrors "fleetbook/internal/bookings/errors"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/model"
	"slices"
	"sync"
)

type memoryTxKey struct{}

// MemoryStore keeps everything in process. One mutex stands in for the
// database transaction: ExecuteTransaction holds it for the whole callback
// and rolls bookings back if the callback fails.
type MemoryStore struct {
	mu        sync.Mutex
	employees map[int64]model.Employee
	vehicles  map[int64]model.Vehicle
	bookings  []model.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees: make(map[int64]model.Employee),
		vehicles:  make(map[int64]model.Vehicle),
	}
}

// lock takes the store mutex unless ctx already runs inside a transaction
// on this store.
func (s *MemoryStore) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(memoryTxKey{}).(*MemoryStore); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) UpsertEmployee(ctx context.Context, employee *model.Employee) error {
	defer s.lock(ctx)()
	e := *employee
	e.AllowedCategories = slices.Clone(employee.AllowedCategories)
	s.employees[e.ID] = e
	return nil
}

func (s *MemoryStore) UpsertVehicle(ctx context.Context, vehicle *model.Vehicle) error {
	defer s.lock(ctx)()
	v := *vehicle
	if vehicle.AssignedDriverID != nil {
		driver := *vehicle.AssignedDriverID
		v.AssignedDriverID = &driver
	}
	s.vehicles[v.ID] = v
	return nil
}

func (s *MemoryStore) FindEmployee(ctx context.Context, id int64) (*model.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	e, ok := s.employees[id]
	if !ok {
		return nil, bookingserrors.ErrEmployeeNotFound
	}
	e.AllowedCategories = slices.Clone(e.AllowedCategories)
	return &e, nil
}

func (s *MemoryStore) FindVehicles(ctx context.Context, f filter.Filter) ([]*model.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	var out []*model.Vehicle
	for _, v := range s.vehicles {
		v := v
		if f.Matches(&v) {
			out = append(out, &v)
		}
	}
	slices.SortFunc(out, func(a, b *model.Vehicle) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) FindBookings(ctx context.Context, f filter.Filter, page *Page) ([]*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	matched := s.matchBookings(f)
	if page == nil {
		return matched, nil
	}
	if page.Offset >= int64(len(matched)) {
		return []*model.Booking{}, nil
	}
	matched = matched[page.Offset:]
	if page.Limit > 0 && len(matched) > page.Limit {
		matched = matched[:page.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) CountBookings(ctx context.Context, f filter.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	defer s.lock(ctx)()
	return int64(len(s.matchBookings(f))), nil
}

func (s *MemoryStore) matchBookings(f filter.Filter) []*model.Booking {
	out := []*model.Booking{}
	for _, b := range s.bookings {
		b := b
		if f.Matches(&b) {
			out = append(out, &b)
		}
	}
	slices.SortFunc(out, func(a, b *model.Booking) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *MemoryStore) FindBookingByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	for _, b := range s.bookings {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, bookingserrors.ErrNotFound
}

// InsertBooking refuses a booking that overlaps an existing one on the same
// vehicle, mirroring the exclusion constraint of the SQL schema.
func (s *MemoryStore) InsertBooking(ctx context.Context, booking *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock(ctx)()

	for _, b := range s.bookings {
		if b.ID == booking.ID {
			return fmt.Errorf("booking %s already exists", booking.ID)
		}
		if b.VehicleID == booking.VehicleID && model.Overlaps(b.Interval(), booking.Interval()) {
			return fmt.Errorf("%w: vehicle %d already booked for %s", bookingserrors.ErrWriteConflict, b.VehicleID, b.Interval())
		}
	}

	booking.CreatedAt = now()
	s.bookings = append(s.bookings, *booking)
	return nil
}

func (s *MemoryStore) GuardVehicle(ctx context.Context, vehicleID int64) error {
	defer s.lock(ctx)()
	if _, ok := s.vehicles[vehicleID]; !ok {
		return fmt.Errorf("%w: %d", bookingserrors.ErrVehicleNotFound, vehicleID)
	}
	return nil
}

func (s *MemoryStore) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, _ := ctx.Value(memoryTxKey{}).(*MemoryStore); owner == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := len(s.bookings)
	if err := fn(context.WithValue(ctx, memoryTxKey{}, s)); err != nil {
		s.bookings = s.bookings[:snapshot]
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}
