package model

import "fleetbook/pkg/filter"

const (
	VehicleID               filter.Field = "vehicle.id"
	VehicleCategory         filter.Field = "vehicle.category"
	VehicleAssignedDriverID filter.Field = "vehicle.assigned_driver_id"
)

type Vehicle struct {
	ID               int64  `json:"id" bson:"_id"`
	Name             string `json:"name" bson:"name"`
	Category         string `json:"category" bson:"category"`
	AssignedDriverID *int64 `json:"assigned_driver_id,omitempty" bson:"assigned_driver_id,omitempty"`
}

// AssignedTo reports whether the vehicle is dedicated to the given employee.
// Unassigned vehicles belong to nobody.
func (v *Vehicle) AssignedTo(employeeID int64) bool {
	return v.AssignedDriverID != nil && *v.AssignedDriverID == employeeID
}

func (v *Vehicle) FieldValue(field filter.Field) (any, bool) {
	switch field {
	case VehicleID:
		return v.ID, true
	case VehicleCategory:
		return v.Category, true
	case VehicleAssignedDriverID:
		if v.AssignedDriverID == nil {
			return nil, false
		}
		return *v.AssignedDriverID, true
	}
	return nil, false
}
