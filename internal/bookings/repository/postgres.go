package repository

import (
	"context"
	"errors"
	"fmt"
	bookingserrors "fleetbook/internal/bookings/errors"
	"fleetbook/pkg/config"
	pgdb "fleetbook/pkg/db/postgres"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pgVehicleColumns = map[filter.Field]string{
		model.VehicleID:               "id",
		model.VehicleCategory:         "category",
		model.VehicleAssignedDriverID: "assigned_driver_id",
	}
	pgBookingColumns = map[filter.Field]string{
		model.BookingID:         "id::text",
		model.BookingEmployeeID: "employee_id",
		model.BookingVehicleID:  "vehicle_id",
		model.BookingStartTime:  "start_time",
		model.BookingEndTime:    "end_time",
	}
)

const bookingColumns = "id::text, employee_id, vehicle_id, start_time, end_time, created_at"

type PostgresStore struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	txManager pgdb.TransactionManager
}

func NewPostgresStore(cfg *config.Config) *PostgresStore {
	return &PostgresStore{
		cfg:       cfg,
		pool:      cfg.Client.Postgres,
		txManager: pgdb.NewTransactionManager(cfg.Client.Postgres),
	}
}

func (s *PostgresStore) conn(ctx context.Context) pgdb.Querier {
	return pgdb.Conn(ctx, s.pool)
}

func (s *PostgresStore) UpsertEmployee(ctx context.Context, employee *model.Employee) error {
	_, err := s.conn(ctx).Exec(ctx,
		`INSERT INTO employees (id, name, allowed_categories) VALUES ($1, $2, COALESCE($3::text[], '{}'))
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, allowed_categories = EXCLUDED.allowed_categories`,
		employee.ID, employee.Name, employee.AllowedCategories,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert employee %d: %w", employee.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertVehicle(ctx context.Context, vehicle *model.Vehicle) error {
	_, err := s.conn(ctx).Exec(ctx,
		`INSERT INTO vehicles (id, name, category, assigned_driver_id) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
		 assigned_driver_id = EXCLUDED.assigned_driver_id`,
		vehicle.ID, vehicle.Name, vehicle.Category, vehicle.AssignedDriverID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vehicle %d: %w", vehicle.ID, err)
	}
	return nil
}

func (s *PostgresStore) FindEmployee(ctx context.Context, id int64) (*model.Employee, error) {
	var e model.Employee
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT id, name, allowed_categories FROM employees WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.AllowedCategories)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingserrors.ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) FindVehicles(ctx context.Context, f filter.Filter) ([]*model.Vehicle, error) {
	where, args, err := pgdb.Where(f, pgVehicleColumns, 0)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn(ctx).Query(ctx,
		`SELECT id, name, category, assigned_driver_id FROM vehicles WHERE `+where+` ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := []*model.Vehicle{}
	for rows.Next() {
		var v model.Vehicle
		if err := rows.Scan(&v.ID, &v.Name, &v.Category, &v.AssignedDriverID); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, &v)
	}
	return vehicles, rows.Err()
}

func (s *PostgresStore) FindBookings(ctx context.Context, f filter.Filter, page *Page) ([]*model.Booking, error) {
	where, args, err := pgdb.Where(f, pgBookingColumns, 0)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where + ` ORDER BY start_time, id`
	if page != nil {
		if page.Limit > 0 {
			args = append(args, page.Limit)
			query += fmt.Sprintf(" LIMIT $%d", len(args))
		}
		args = append(args, page.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	bookings := []*model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *PostgresStore) CountBookings(ctx context.Context, f filter.Filter) (int64, error) {
	where, args, err := pgdb.Where(f, pgBookingColumns, 0)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE `+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) FindBookingByID(ctx context.Context, id string) (*model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, bookingserrors.ErrNotFound
	}

	b, err := scanBooking(s.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1::uuid`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	if err := row.Scan(&b.ID, &b.EmployeeID, &b.VehicleID, &b.StartTime, &b.EndTime, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	b.StartTime, b.EndTime, b.CreatedAt = b.StartTime.UTC(), b.EndTime.UTC(), b.CreatedAt.UTC()
	return &b, nil
}

// InsertBooking relies on the bookings_no_overlap exclusion constraint as a
// last line of defence; its violation is reported as a write conflict.
func (s *PostgresStore) InsertBooking(ctx context.Context, booking *model.Booking) error {
	booking.CreatedAt = now()
	_, err := s.conn(ctx).Exec(ctx,
		`INSERT INTO bookings (id, employee_id, vehicle_id, start_time, end_time, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)`,
		booking.ID, booking.EmployeeID, booking.VehicleID, booking.StartTime, booking.EndTime, booking.CreatedAt,
	)
	if err != nil {
		if pgdb.HasCode(err, pgdb.ExclusionViolation, pgdb.SerializationFail, pgdb.DeadlockDetected) {
			return fmt.Errorf("%w: %v", bookingserrors.ErrWriteConflict, err)
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GuardVehicle takes the vehicle row lock. Concurrent commits on the same
// vehicle queue here until the holder's transaction ends.
func (s *PostgresStore) GuardVehicle(ctx context.Context, vehicleID int64) error {
	var id int64
	err := s.conn(ctx).QueryRow(ctx, `SELECT id FROM vehicles WHERE id = $1 FOR UPDATE`, vehicleID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %d", bookingserrors.ErrVehicleNotFound, vehicleID)
		}
		if pgdb.HasCode(err, pgdb.DeadlockDetected, pgdb.SerializationFail) {
			return fmt.Errorf("%w: %v", bookingserrors.ErrWriteConflict, err)
		}
		return fmt.Errorf("failed to lock vehicle %d: %w", vehicleID, err)
	}
	return nil
}

func (s *PostgresStore) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.txManager.ExecuteTransaction(ctx, fn)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
