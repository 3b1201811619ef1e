package events

import (
	"context"
	"fleetbook/pkg/kafka"
	"fleetbook/pkg/logger"
	"fleetbook/pkg/model"
	"strconv"
	"sync"
	"time"
)

const (
	EventBookingCreated = "booking.created"
	SchemaVersion       = "1"
	Source              = "bookings"

	publishTimeout = 5 * time.Second
)

// Publisher announces committed bookings. Publishing is best effort: a
// failure is logged and never undoes or fails the booking.
type Publisher interface {
	BookingCreated(ctx context.Context, booking *model.Booking)
}

type BookingCreatedPayload struct {
	BookingID  string    `json:"booking_id"`
	EmployeeID int64     `json:"employee_id"`
	VehicleID  int64     `json:"vehicle_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	CreatedAt  time.Time `json:"created_at"`
}

type messagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher sends events from background goroutines so a slow or
// unreachable broker never delays the booking response. Close waits for the
// events still in flight.
type KafkaPublisher struct {
	producer messagePublisher
	log      *logger.Logger
	wg       sync.WaitGroup
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, log: log}
}

func (p *KafkaPublisher) BookingCreated(ctx context.Context, booking *model.Booking) {
	msg, err := kafka.NewMessage().
		WithKey(strconv.FormatInt(booking.VehicleID, 10)).
		WithValue(BookingCreatedPayload{
			BookingID:  booking.ID,
			EmployeeID: booking.EmployeeID,
			VehicleID:  booking.VehicleID,
			StartTime:  booking.StartTime.UTC(),
			EndTime:    booking.EndTime.UTC(),
			CreatedAt:  booking.CreatedAt.UTC(),
		}).
		WithEventType(EventBookingCreated).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithCorrelationID(booking.ID).
		Build()
	if err != nil {
		p.log.Error("Failed to build booking event", "booking_id", booking.ID, "error", err)
		return
	}

	// Detached from the request so the response does not wait on the broker.
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		if err := p.producer.Publish(ctx, msg); err != nil {
			p.log.Warn("Failed to publish booking event",
				"booking_id", booking.ID,
				"vehicle_id", booking.VehicleID,
				"error", err,
			)
		}
	}()
}

// Close blocks until every pending event has been handed to the producer.
func (p *KafkaPublisher) Close() error {
	p.wg.Wait()
	return nil
}

type noopPublisher struct{}

// Noop is used when Kafka is disabled.
func Noop() Publisher {
	return noopPublisher{}
}

func (noopPublisher) BookingCreated(context.Context, *model.Booking) {}
