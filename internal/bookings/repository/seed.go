package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"fleetbook/pkg/model"
	"fleetbook/pkg/sanitizer"
	"io"
)

// Fixtures is the JSON shape accepted by LoadFixtures.
type Fixtures struct {
	Employees []*model.Employee `json:"employees"`
	Vehicles  []*model.Vehicle  `json:"vehicles"`
}

// LoadFixtures upserts the employees and vehicles read from r and returns how
// many of each were written.
func LoadFixtures(ctx context.Context, w ReferenceWriter, r io.Reader) (employees int, vehicles int, err error) {
	var fx Fixtures
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return 0, 0, fmt.Errorf("failed to decode fixtures: %w", err)
	}

	for _, e := range fx.Employees {
		if e.ID <= 0 {
			return employees, vehicles, fmt.Errorf("employee id must be positive, got %d", e.ID)
		}
		e.Name = sanitizer.NormalizeName(e.Name)
		e.AllowedCategories = sanitizer.NormalizeCategories(e.AllowedCategories)
		if err := w.UpsertEmployee(ctx, e); err != nil {
			return employees, vehicles, err
		}
		employees++
	}
	for _, v := range fx.Vehicles {
		if v.ID <= 0 {
			return employees, vehicles, fmt.Errorf("vehicle id must be positive, got %d", v.ID)
		}
		v.Name = sanitizer.NormalizeName(v.Name)
		v.Category = sanitizer.NormalizeCategory(v.Category)
		if v.Category == "" {
			return employees, vehicles, fmt.Errorf("vehicle %d has no category", v.ID)
		}
		if err := w.UpsertVehicle(ctx, v); err != nil {
			return employees, vehicles, err
		}
		vehicles++
	}
	return employees, vehicles, nil
}
