package model

import "fleetbook/pkg/filter"

const EmployeeID filter.Field = "employee.id"

type Employee struct {
	ID                int64    `json:"id" bson:"_id"`
	Name              string   `json:"name" bson:"name"`
	AllowedCategories []string `json:"allowed_categories" bson:"allowed_categories"`
}

func (e *Employee) FieldValue(field filter.Field) (any, bool) {
	if field == EmployeeID {
		return e.ID, true
	}
	return nil, false
}
