package service

import (
	"cmp"
	"context"
	"fmt"
	"fleetbook/internal/bookings/repository"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/model"
	"slices"
)

type AvailabilityResolver struct {
	store       repository.Store
	eligibility *EligibilityFilter
}

func NewAvailabilityResolver(store repository.Store, eligibility *EligibilityFilter) *AvailabilityResolver {
	return &AvailabilityResolver{store: store, eligibility: eligibility}
}

// FindAvailable lists the vehicles the employee may take for the whole
// interval, ordered by id. An empty result is not an error.
func (r *AvailabilityResolver) FindAvailable(ctx context.Context, employeeID int64, interval model.Interval) ([]*model.Vehicle, error) {
	return r.findAvailable(ctx, employeeID, interval, nil)
}

// findAvailable additionally skips the vehicles in exclude.
func (r *AvailabilityResolver) findAvailable(ctx context.Context, employeeID int64, interval model.Interval, exclude []int64) ([]*model.Vehicle, error) {
	allowed, err := r.eligibility.LoadAllowedCategories(ctx, employeeID)
	if err != nil {
		return nil, err
	}

	overlapping, err := r.store.FindBookings(ctx, model.OverlappingBookings(interval), nil)
	if err != nil {
		return nil, fmt.Errorf("find overlapping bookings: %w", err)
	}

	busy := append(bookedVehicleIDs(overlapping), exclude...)
	vehicles, err := r.store.FindVehicles(ctx, CandidateFilter(employeeID, allowed, busy))
	if err != nil {
		return nil, fmt.Errorf("find candidate vehicles: %w", err)
	}

	slices.SortFunc(vehicles, func(a, b *model.Vehicle) int { return cmp.Compare(a.ID, b.ID) })
	return vehicles, nil
}

// CandidateFilter selects vehicles in an allowed category, assigned to the
// employee and not among busy.
func CandidateFilter(employeeID int64, allowed []string, busy []int64) filter.Filter {
	return filter.And(
		filter.In(model.VehicleCategory, allowed),
		filter.Eq(model.VehicleAssignedDriverID, employeeID),
		filter.NotIn(model.VehicleID, busy),
	)
}

func bookedVehicleIDs(bookings []*model.Booking) []int64 {
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.VehicleID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
