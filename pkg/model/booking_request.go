package model

import "time"

// BookingRequest is the validated input of one booking attempt.
type BookingRequest struct {
	EmployeeID int64     `json:"employee_id" validate:"required,gt=0"`
	StartTime  time.Time `json:"start_date" validate:"required"`
	EndTime    time.Time `json:"end_date" validate:"required,gtfield=StartTime"`
}

func (r *BookingRequest) Interval() Interval {
	return Interval{Start: r.StartTime, End: r.EndTime}
}
