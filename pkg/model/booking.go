package model

import (
	"time"

	"fleetbook/pkg/filter"
)

const (
	BookingID         filter.Field = "booking.id"
	BookingEmployeeID filter.Field = "booking.employee_id"
	BookingVehicleID  filter.Field = "booking.vehicle_id"
	BookingStartTime  filter.Field = "booking.start_time"
	BookingEndTime    filter.Field = "booking.end_time"
)

// Booking is written once by the allocator and never updated.
type Booking struct {
	ID         string    `json:"id" bson:"_id"`
	EmployeeID int64     `json:"employee_id" bson:"employee_id"`
	VehicleID  int64     `json:"vehicle_id" bson:"vehicle_id"`
	StartTime  time.Time `json:"start_time" bson:"start_time"`
	EndTime    time.Time `json:"end_time" bson:"end_time"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

func (b *Booking) FieldValue(field filter.Field) (any, bool) {
	switch field {
	case BookingID:
		return b.ID, true
	case BookingEmployeeID:
		return b.EmployeeID, true
	case BookingVehicleID:
		return b.VehicleID, true
	case BookingStartTime:
		return b.StartTime, true
	case BookingEndTime:
		return b.EndTime, true
	}
	return nil, false
}

// OverlappingBookings selects bookings that share at least one instant with
// the interval, using the same half-open rule as Overlaps.
func OverlappingBookings(i Interval) filter.Filter {
	return filter.And(
		filter.Lt(BookingStartTime, i.End),
		filter.Gt(BookingEndTime, i.Start),
	)
}
