package service

import (
	"context"
	"fmt"
	"fleetbook/internal/bookings/repository"
)

// EligibilityFilter answers which vehicle categories an employee may book.
// Nothing is cached: permissions are read on every request.
type EligibilityFilter struct {
	store repository.Store
}

func NewEligibilityFilter(store repository.Store) *EligibilityFilter {
	return &EligibilityFilter{store: store}
}

// LoadAllowedCategories returns bookingserrors.ErrEmployeeNotFound when the
// employee does not exist. Other store errors come back wrapped.
func (e *EligibilityFilter) LoadAllowedCategories(ctx context.Context, employeeID int64) ([]string, error) {
	employee, err := e.store.FindEmployee(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("load employee %d: %w", employeeID, err)
	}
	if employee.AllowedCategories == nil {
		return []string{}, nil
	}
	return employee.AllowedCategories, nil
}
