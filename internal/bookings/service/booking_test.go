package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bookingserrors "fleetbook/internal/bookings/errors"
	"fleetbook/internal/bookings/repository"
	"fleetbook/internal/bookings/validator"
	"fleetbook/pkg/config"
	apperrors "fleetbook/pkg/errors"
	"fleetbook/pkg/filter"
	"fleetbook/pkg/lock"
	"fleetbook/pkg/logger"
	"fleetbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func ptr(v int64) *int64 { return &v }

type recordingPublisher struct {
	mu       sync.Mutex
	bookings []*model.Booking
}

func (p *recordingPublisher) BookingCreated(_ context.Context, booking *model.Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bookings = append(p.bookings, booking)
}

// racingStore books the first resolved candidate on behalf of another
// request right after FindVehicles returns, the way a concurrent commit
// would land between resolution and commit.
type racingStore struct {
	*repository.MemoryStore
	races int
}

func (s *racingStore) FindVehicles(ctx context.Context, f filter.Filter) ([]*model.Vehicle, error) {
	vehicles, err := s.MemoryStore.FindVehicles(ctx, f)
	if err != nil || len(vehicles) == 0 || s.races == 0 {
		return vehicles, err
	}
	s.races--
	rival := &model.Booking{ID: "rival-" + time.Now().Format(time.RFC3339Nano), EmployeeID: 99, VehicleID: vehicles[0].ID, StartTime: at(0, 0), EndTime: at(23, 59)}
	if err := s.MemoryStore.InsertBooking(ctx, rival); err != nil {
		return nil, err
	}
	return vehicles, nil
}

type failingStore struct {
	*repository.MemoryStore
	findEmployeeFunc func(ctx context.Context, id int64) (*model.Employee, error)
	countFunc        func(ctx context.Context, f filter.Filter) (int64, error)
}

func (s *failingStore) FindEmployee(ctx context.Context, id int64) (*model.Employee, error) {
	if s.findEmployeeFunc != nil {
		return s.findEmployeeFunc(ctx, id)
	}
	return s.MemoryStore.FindEmployee(ctx, id)
}

func (s *failingStore) CountBookings(ctx context.Context, f filter.Filter) (int64, error) {
	if s.countFunc != nil {
		return s.countFunc(ctx, f)
	}
	return s.MemoryStore.CountBookings(ctx, f)
}

type mockLocker struct {
	acquireFunc func(ctx context.Context, key string) (lock.Lease, error)
	keys        []string
}

func (m *mockLocker) Acquire(ctx context.Context, key string) (lock.Lease, error) {
	m.keys = append(m.keys, key)
	return m.acquireFunc(ctx, key)
}

// seed gives employee 7 categories A and B. Vehicles 1 and 3 are theirs and
// eligible, 2 is theirs but in category C, 4 is eligible but unassigned.
func seed(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := repository.NewMemoryStore()
	require.NoError(t, s.UpsertEmployee(ctx, &model.Employee{ID: 7, Name: "Ivanov", AllowedCategories: []string{"A", "B"}}))
	require.NoError(t, s.UpsertEmployee(ctx, &model.Employee{ID: 8, Name: "Petrov"}))
	require.NoError(t, s.UpsertVehicle(ctx, &model.Vehicle{ID: 3, Name: "Camry", Category: "A", AssignedDriverID: ptr(7)}))
	require.NoError(t, s.UpsertVehicle(ctx, &model.Vehicle{ID: 1, Name: "Octavia", Category: "B", AssignedDriverID: ptr(7)}))
	require.NoError(t, s.UpsertVehicle(ctx, &model.Vehicle{ID: 2, Name: "Polo", Category: "C", AssignedDriverID: ptr(7)}))
	require.NoError(t, s.UpsertVehicle(ctx, &model.Vehicle{ID: 4, Name: "Rio", Category: "A"}))
	return s
}

func newService(store repository.Store, locker lock.Locker, publisher *recordingPublisher, attempts int) BookingService {
	log := logger.Discard()
	cfg := &config.Config{AllocationMaxAttempts: attempts, Log: log}
	return NewBookingService(store, locker, publisher, validator.NewBookingValidator(log), cfg)
}

func vehicleIDs(vehicles []*model.Vehicle) []int64 {
	ids := make([]int64, 0, len(vehicles))
	for _, v := range vehicles {
		ids = append(ids, v.ID)
	}
	return ids
}

func countAll(t *testing.T, s repository.Store) int64 {
	t.Helper()
	n, err := s.CountBookings(context.Background(), filter.And())
	require.NoError(t, err)
	return n
}

func TestBookVehicle_PicksLowestEligibleID(t *testing.T) {
	store := seed(t)
	pub := &recordingPublisher{}
	svc := newService(store, nil, pub, 2)

	res, err := svc.BookVehicle(context.Background(), 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)
	require.NotNil(t, res.Booking)
	assert.Equal(t, int64(1), res.Booking.VehicleID)
	assert.Equal(t, int64(7), res.Booking.EmployeeID)
	assert.NotEmpty(t, res.Booking.ID)
	assert.True(t, res.Booking.StartTime.Equal(at(9, 0)))

	stored, err := store.FindBookingByID(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.VehicleID, stored.VehicleID)

	require.Len(t, pub.bookings, 1)
	assert.Equal(t, res.Booking.ID, pub.bookings[0].ID)
}

func TestBookVehicle_ExhaustsEligibleVehicles(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)
	ctx := context.Background()

	first, err := svc.BookVehicle(ctx, 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	second, err := svc.BookVehicle(ctx, 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Booking.VehicleID)
	assert.Equal(t, int64(3), second.Booking.VehicleID)

	third, err := svc.BookVehicle(ctx, 7, at(9, 30), at(9, 45))
	require.Error(t, err)
	assert.Equal(t, OutcomeNoAvailability, third.Outcome)
	assert.Nil(t, third.Booking)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoAvailability))
	assert.Equal(t, 409, apperrors.AsAppError(err).StatusCode())
}

func TestBookVehicle_TouchingIntervalsDoNotConflict(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)
	ctx := context.Background()

	for _, iv := range [][2]time.Time{
		{at(9, 0), at(10, 0)},
		{at(10, 0), at(11, 0)},
		{at(8, 0), at(9, 0)},
	} {
		res, err := svc.BookVehicle(ctx, 7, iv[0], iv[1])
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Booking.VehicleID, "interval %v", iv)
	}
}

func TestBookVehicle_InvalidRequest(t *testing.T) {
	tests := []struct {
		name       string
		employeeID int64
		start, end time.Time
	}{
		{name: "start equals end", employeeID: 7, start: at(9, 0), end: at(9, 0)},
		{name: "start after end", employeeID: 7, start: at(10, 0), end: at(9, 0)},
		{name: "zero employee", employeeID: 0, start: at(9, 0), end: at(10, 0)},
		{name: "negative employee", employeeID: -3, start: at(9, 0), end: at(10, 0)},
		{name: "missing start", employeeID: 7, end: at(10, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seed(t)
			pub := &recordingPublisher{}
			svc := newService(store, nil, pub, 2)

			res, err := svc.BookVehicle(context.Background(), tt.employeeID, tt.start, tt.end)
			require.Error(t, err)
			assert.Equal(t, OutcomeInvalidRequest, res.Outcome)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))
			assert.NotEmpty(t, apperrors.AsAppError(err).Details)
			assert.Zero(t, countAll(t, store))
			assert.Empty(t, pub.bookings)
		})
	}
}

func TestBookVehicle_EmployeeNotFound(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)

	res, err := svc.BookVehicle(context.Background(), 42, at(9, 0), at(10, 0))
	require.Error(t, err)
	assert.Equal(t, OutcomeEmployeeNotFound, res.Outcome)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeEmployeeNotFound, appErr.Code)
	assert.Equal(t, int64(42), appErr.Details["employee_id"])
}

func TestBookVehicle_EmployeeWithoutCategories(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)

	res, err := svc.BookVehicle(context.Background(), 8, at(9, 0), at(10, 0))
	require.Error(t, err)
	assert.Equal(t, OutcomeNoAvailability, res.Outcome)
}

func TestBookVehicle_ConcurrentRequestsBookOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.UpsertEmployee(ctx, &model.Employee{ID: 7, AllowedCategories: []string{"A"}}))
	require.NoError(t, store.UpsertVehicle(ctx, &model.Vehicle{ID: 1, Category: "A", AssignedDriverID: ptr(7)}))

	pub := &recordingPublisher{}
	svc := newService(store, nil, pub, 2)

	const workers = 8
	outcomes := make([]Outcome, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, _ := svc.BookVehicle(ctx, 7, at(9, 0), at(10, 0))
			outcomes[i] = res.Outcome
		}()
	}
	close(start)
	wg.Wait()

	booked := 0
	for _, o := range outcomes {
		if o == OutcomeBooked {
			booked++
			continue
		}
		assert.Equal(t, OutcomeNoAvailability, o)
	}
	assert.Equal(t, 1, booked)
	assert.Equal(t, int64(1), countAll(t, store))
	assert.Len(t, pub.bookings, 1)
}

func TestBookVehicle_RetryAfterLostRace(t *testing.T) {
	store := &racingStore{MemoryStore: seed(t), races: 1}
	svc := newService(store, nil, &recordingPublisher{}, 2)

	res, err := svc.BookVehicle(context.Background(), 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, res.Outcome)
	assert.Equal(t, int64(3), res.Booking.VehicleID)
}

func TestBookVehicle_FailFastAfterLostRace(t *testing.T) {
	store := &racingStore{MemoryStore: seed(t), races: 1}
	svc := newService(store, nil, &recordingPublisher{}, 1)

	res, err := svc.BookVehicle(context.Background(), 7, at(9, 0), at(10, 0))
	require.Error(t, err)
	assert.Equal(t, OutcomeNoAvailability, res.Outcome)
	// only the rival's booking exists
	assert.Equal(t, int64(1), countAll(t, store))
}

func TestBookVehicle_LockHeldElsewhereCountsAsLostRace(t *testing.T) {
	locker := &mockLocker{}
	locker.acquireFunc = func(ctx context.Context, key string) (lock.Lease, error) {
		if key == VehicleLockKey(1) {
			return nil, lock.ErrNotAcquired
		}
		return lock.Noop().Acquire(ctx, key)
	}
	svc := newService(seed(t), locker, &recordingPublisher{}, 2)

	res, err := svc.BookVehicle(context.Background(), 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Booking.VehicleID)
	assert.Equal(t, []string{"vehicle:1", "vehicle:3"}, locker.keys)
}

func TestBookVehicle_CancelledContext(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.BookVehicle(ctx, 7, at(9, 0), at(10, 0))
	require.Error(t, err)
	assert.Equal(t, OutcomeStorageUnavailable, res.Outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, countAll(t, store))
}

func TestBookVehicle_StorageFailure(t *testing.T) {
	boom := errors.New("connection reset")
	store := &failingStore{
		MemoryStore: seed(t),
		findEmployeeFunc: func(context.Context, int64) (*model.Employee, error) {
			return nil, boom
		},
	}
	svc := newService(store, nil, &recordingPublisher{}, 2)

	res, err := svc.BookVehicle(context.Background(), 7, at(9, 0), at(10, 0))
	require.Error(t, err)
	assert.Equal(t, OutcomeStorageUnavailable, res.Outcome)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 503, apperrors.AsAppError(err).StatusCode())
}

func TestFindAvailable_OverlapRules(t *testing.T) {
	store := seed(t)
	ctx := context.Background()
	require.NoError(t, store.InsertBooking(ctx, &model.Booking{ID: "b1", EmployeeID: 7, VehicleID: 1, StartTime: at(9, 0), EndTime: at(10, 0)}))
	svc := newService(store, nil, &recordingPublisher{}, 2)

	tests := []struct {
		name       string
		start, end time.Time
		want       []int64
	}{
		{name: "overlapping tail", start: at(9, 30), end: at(10, 30), want: []int64{3}},
		{name: "contained", start: at(9, 15), end: at(9, 45), want: []int64{3}},
		{name: "containing", start: at(8, 0), end: at(11, 0), want: []int64{3}},
		{name: "touching after", start: at(10, 0), end: at(11, 0), want: []int64{1, 3}},
		{name: "touching before", start: at(8, 0), end: at(9, 0), want: []int64{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vehicles, err := svc.FindAvailable(ctx, 7, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, vehicleIDs(vehicles))
		})
	}
}

func TestFindAvailable_ExcludesCategoryAndUnassigned(t *testing.T) {
	svc := newService(seed(t), nil, &recordingPublisher{}, 2)

	vehicles, err := svc.FindAvailable(context.Background(), 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, vehicleIDs(vehicles))
}

func TestFindAvailable_OtherEmployeesBookingsStillBlock(t *testing.T) {
	store := seed(t)
	ctx := context.Background()
	require.NoError(t, store.InsertBooking(ctx, &model.Booking{ID: "b1", EmployeeID: 99, VehicleID: 3, StartTime: at(9, 0), EndTime: at(10, 0)}))
	svc := newService(store, nil, &recordingPublisher{}, 2)

	vehicles, err := svc.FindAvailable(ctx, 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, vehicleIDs(vehicles))
}

func TestFindAvailable_ReadsHaveNoSideEffects(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)
	ctx := context.Background()

	first, err := svc.FindAvailable(ctx, 7, at(9, 0), at(10, 0))
	require.NoError(t, err)
	second, err := svc.FindAvailable(ctx, 7, at(9, 0), at(10, 0))
	require.NoError(t, err)

	assert.Equal(t, vehicleIDs(first), vehicleIDs(second))
	assert.Zero(t, countAll(t, store))
}

func TestFindAvailable_Errors(t *testing.T) {
	svc := newService(seed(t), nil, &recordingPublisher{}, 2)
	ctx := context.Background()

	_, err := svc.FindAvailable(ctx, 7, at(10, 0), at(9, 0))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))

	_, err = svc.FindAvailable(ctx, 42, at(9, 0), at(10, 0))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEmployeeNotFound))
}

func TestGetBooking(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)
	ctx := context.Background()

	res, err := svc.BookVehicle(ctx, 7, at(9, 0), at(10, 0))
	require.NoError(t, err)

	got, err := svc.GetBooking(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, got.ID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = svc.GetBooking(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = svc.GetBooking(ctx, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))
}

func TestListEmployeeBookings(t *testing.T) {
	store := seed(t)
	svc := newService(store, nil, &recordingPublisher{}, 2)
	ctx := context.Background()

	for h := 8; h < 12; h++ {
		_, err := svc.BookVehicle(ctx, 7, at(h, 0), at(h+1, 0))
		require.NoError(t, err)
	}
	require.NoError(t, store.InsertBooking(ctx, &model.Booking{ID: "other", EmployeeID: 99, VehicleID: 4, StartTime: at(9, 0), EndTime: at(10, 0)}))

	page, total, err := svc.ListEmployeeBookings(ctx, 7, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, page, 2)
	assert.True(t, page[0].StartTime.Equal(at(9, 0)))
	assert.True(t, page[1].StartTime.Equal(at(10, 0)))

	_, _, err = svc.ListEmployeeBookings(ctx, 0, 10, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidRequest))
}

func TestListEmployeeBookings_StorageFailure(t *testing.T) {
	store := &failingStore{
		MemoryStore: seed(t),
		countFunc: func(context.Context, filter.Filter) (int64, error) {
			return 0, errors.New("timeout")
		},
	}
	svc := newService(store, nil, &recordingPublisher{}, 2)

	_, _, err := svc.ListEmployeeBookings(context.Background(), 7, 10, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStorageUnavailable))
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeBooked},
		{apperrors.InvalidRequest("bad", nil), OutcomeInvalidRequest},
		{apperrors.EmployeeNotFound(1), OutcomeEmployeeNotFound},
		{apperrors.NoAvailability("none"), OutcomeNoAvailability},
		{apperrors.StorageUnavailable(errors.New("down")), OutcomeStorageUnavailable},
		{errors.New("plain"), OutcomeStorageUnavailable},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutcomeOf(tt.err), "%v", tt.err)
	}
}

func TestToAppError(t *testing.T) {
	assert.Equal(t, apperrors.CodeEmployeeNotFound, toAppError(bookingserrors.ErrEmployeeNotFound, 5).Code)
	assert.Equal(t, apperrors.CodeNoAvailability, toAppError(bookingserrors.ErrNoCandidates, 5).Code)
	assert.Equal(t, apperrors.CodeNoAvailability, toAppError(bookingserrors.ErrConflict, 5).Code)
	assert.Equal(t, apperrors.CodeStorageUnavailable, toAppError(context.DeadlineExceeded, 5).Code)
	assert.Equal(t, apperrors.CodeStorageUnavailable, toAppError(errors.New("io"), 5).Code)
}
