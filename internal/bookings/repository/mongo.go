package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "fleetbook/internal/bookings/errors"
	"fleetbook/pkg/config"
	mongodb "fleetbook/pkg/db/mongo"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	VehiclesCollection      = "Vehicles"
	EmployeesCollection     = "Employees"
	BookingsCollection      = "Bookings"
	VehicleGuardsCollection = "Vehicle_guards"
)

var (
	mongoVehicleFields = map[filter.Field]string{
		model.VehicleID:               "_id",
		model.VehicleCategory:         "category",
		model.VehicleAssignedDriverID: "assigned_driver_id",
	}
	mongoBookingFields = map[filter.Field]string{
		model.BookingID:         "_id",
		model.BookingEmployeeID: "employee_id",
		model.BookingVehicleID:  "vehicle_id",
		model.BookingStartTime:  "start_time",
		model.BookingEndTime:    "end_time",
	}
)

type MongoStore struct {
	cfg       *config.Config
	client    *mongo.Client
	vehicles  *mongo.Collection
	employees *mongo.Collection
	bookings  *mongo.Collection
	guards    *mongo.Collection
	txManager mongodb.TransactionManager
}

func NewMongoStore(cfg *config.Config) *MongoStore {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &MongoStore{
		cfg:       cfg,
		client:    cfg.Client.Mongo,
		vehicles:  db.Collection(VehiclesCollection),
		employees: db.Collection(EmployeesCollection),
		bookings:  db.Collection(BookingsCollection),
		guards:    db.Collection(VehicleGuardsCollection),
		txManager: mongodb.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout bounds a single call unless ctx is a session context: wrapping
// a SessionContext would detach the call from its transaction.
func (s *MongoStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *MongoStore) UpsertEmployee(ctx context.Context, employee *model.Employee) error {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	doc := *employee
	if doc.AllowedCategories == nil {
		doc.AllowedCategories = []string{}
	}

	_, err := s.employees.ReplaceOne(ctx, bson.M{"_id": doc.ID}, &doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert employee %d: %w", employee.ID, err)
	}
	return nil
}

func (s *MongoStore) UpsertVehicle(ctx context.Context, vehicle *model.Vehicle) error {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, err := s.vehicles.ReplaceOne(ctx, bson.M{"_id": vehicle.ID}, vehicle, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert vehicle %d: %w", vehicle.ID, err)
	}
	return nil
}

func (s *MongoStore) FindEmployee(ctx context.Context, id int64) (*model.Employee, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var employee model.Employee
	err := s.employees.FindOne(ctx, bson.M{"_id": id}).Decode(&employee)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}
	return &employee, nil
}

func (s *MongoStore) FindVehicles(ctx context.Context, f filter.Filter) ([]*model.Vehicle, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	query, err := mongodb.ToBSON(f, mongoVehicleFields)
	if err != nil {
		return nil, err
	}

	cursor, err := s.vehicles.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", err)
	}
	defer cursor.Close(ctx)

	vehicles := []*model.Vehicle{}
	if err = cursor.All(ctx, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to decode vehicles: %w", err)
	}
	return vehicles, nil
}

func (s *MongoStore) FindBookings(ctx context.Context, f filter.Filter, page *Page) ([]*model.Booking, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	query, err := mongodb.ToBSON(f, mongoBookingFields)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})
	if page != nil {
		opts.SetSkip(page.Offset)
		if page.Limit > 0 {
			opts.SetLimit(int64(page.Limit))
		}
	}

	cursor, err := s.bookings.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	return bookings, nil
}

func (s *MongoStore) CountBookings(ctx context.Context, f filter.Filter) (int64, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	query, err := mongodb.ToBSON(f, mongoBookingFields)
	if err != nil {
		return 0, err
	}

	count, err := s.bookings.CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (s *MongoStore) FindBookingByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var booking model.Booking
	err := s.bookings.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return &booking, nil
}

func (s *MongoStore) InsertBooking(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	booking.CreatedAt = now()
	if _, err := s.bookings.InsertOne(ctx, booking); err != nil {
		if mongodb.IsWriteConflict(err) {
			return err
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GuardVehicle bumps a per-vehicle counter document. Two transactions that
// both bump it conflict on write, so the loser retries and its re-check sees
// the winner's booking.
func (s *MongoStore) GuardVehicle(ctx context.Context, vehicleID int64) error {
	ctx, cancel := s.withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	count, err := s.vehicles.CountDocuments(ctx, bson.M{"_id": vehicleID})
	if err != nil {
		return fmt.Errorf("failed to look up vehicle: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %d", bookingserrors.ErrVehicleNotFound, vehicleID)
	}

	_, err = s.guards.UpdateOne(ctx,
		bson.M{"_id": vehicleID},
		bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"updated_at": now()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// Returned unwrapped so the driver sees the transient label and
		// retries the transaction.
		if mongodb.IsWriteConflict(err) {
			return err
		}
		return fmt.Errorf("failed to guard vehicle %d: %w", vehicleID, err)
	}
	return nil
}

func (s *MongoStore) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.txManager.ExecuteTransaction(ctx, fn)
	if err != nil && mongodb.IsWriteConflict(err) {
		return fmt.Errorf("%w: %v", bookingserrors.ErrWriteConflict, err)
	}
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}
