package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleetbook/internal/bookings/service"
	apperrors "fleetbook/pkg/errors"
	"fleetbook/pkg/logger"
	"fleetbook/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBookingService struct {
	bookVehicleFunc   func(ctx context.Context, employeeID int64, start, end time.Time) (*service.Result, error)
	findAvailableFunc func(ctx context.Context, employeeID int64, start, end time.Time) ([]*model.Vehicle, error)
	getBookingFunc    func(ctx context.Context, id string) (*model.Booking, error)
	listFunc          func(ctx context.Context, employeeID int64, limit int, offset int64) ([]*model.Booking, int64, error)
}

func (m *mockBookingService) BookVehicle(ctx context.Context, employeeID int64, start, end time.Time) (*service.Result, error) {
	return m.bookVehicleFunc(ctx, employeeID, start, end)
}

func (m *mockBookingService) FindAvailable(ctx context.Context, employeeID int64, start, end time.Time) ([]*model.Vehicle, error) {
	return m.findAvailableFunc(ctx, employeeID, start, end)
}

func (m *mockBookingService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	return m.getBookingFunc(ctx, id)
}

func (m *mockBookingService) ListEmployeeBookings(ctx context.Context, employeeID int64, limit int, offset int64) ([]*model.Booking, int64, error) {
	return m.listFunc(ctx, employeeID, limit, offset)
}

var moscow = time.FixedZone("MSK", 3*60*60)

func newRouter(svc service.BookingService) *httprouter.Router {
	router := httprouter.New()
	NewBookingHandler(svc, moscow, logger.Discard()).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestBookVehicle_Created(t *testing.T) {
	var gotStart, gotEnd time.Time
	svc := &mockBookingService{
		bookVehicleFunc: func(_ context.Context, employeeID int64, start, end time.Time) (*service.Result, error) {
			gotStart, gotEnd = start, end
			return &service.Result{Outcome: service.OutcomeBooked, Booking: &model.Booking{
				ID: "b-1", EmployeeID: employeeID, VehicleID: 3, StartTime: start.UTC(), EndTime: end.UTC(),
			}}, nil
		},
	}

	rec := serve(newRouter(svc), http.MethodPost, "/api/v1/bookings",
		`{"employee_id": 7, "start_date": "2026-05-04T09:00", "end_date": "2026-05-04T10:00:00Z"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, gotStart.Equal(time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)), "local layout is read in the configured zone")
	assert.True(t, gotEnd.Equal(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)))

	var body struct {
		Data BookingResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "b-1", body.Data.BookingID)
	assert.Equal(t, int64(3), body.Data.VehicleID)
	assert.Equal(t, int64(7), body.Data.EmployeeID)
}

func TestBookVehicle_OutcomeStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", apperrors.InvalidRequest("bad", nil), http.StatusBadRequest, apperrors.CodeInvalidRequest},
		{"employee not found", apperrors.EmployeeNotFound(7), http.StatusNotFound, apperrors.CodeEmployeeNotFound},
		{"no availability", apperrors.NoAvailability("none"), http.StatusConflict, apperrors.CodeNoAvailability},
		{"storage", apperrors.StorageUnavailable(errors.New("down")), http.StatusServiceUnavailable, apperrors.CodeStorageUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{
				bookVehicleFunc: func(context.Context, int64, time.Time, time.Time) (*service.Result, error) {
					return &service.Result{Outcome: service.OutcomeOf(tt.err)}, tt.err
				},
			}

			rec := serve(newRouter(svc), http.MethodPost, "/api/v1/bookings",
				`{"employee_id": 7, "start_date": "2026-05-04T09:00:00Z", "end_date": "2026-05-04T10:00:00Z"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestBookVehicle_BadInputNeverReachesService(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"employee_id": `},
		{"bad start", `{"employee_id": 7, "start_date": "tomorrow", "end_date": "2026-05-04T10:00:00Z"}`},
		{"missing end", `{"employee_id": 7, "start_date": "2026-05-04T09:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockBookingService{
				bookVehicleFunc: func(context.Context, int64, time.Time, time.Time) (*service.Result, error) {
					t.Fatal("service must not be called")
					return nil, nil
				},
			}

			rec := serve(newRouter(svc), http.MethodPost, "/api/v1/bookings", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apperrors.CodeInvalidRequest, decodeError(t, rec).Code)
		})
	}
}

func TestGetByID(t *testing.T) {
	svc := &mockBookingService{
		getBookingFunc: func(_ context.Context, id string) (*model.Booking, error) {
			if id == "b-1" {
				return &model.Booking{ID: "b-1", VehicleID: 3}, nil
			}
			return nil, apperrors.NotFoundWithID("Booking", id)
		},
	}
	router := newRouter(svc)

	rec := serve(router, http.MethodGet, "/api/v1/bookings/id/b-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"booking_id":"b-1"`)

	rec = serve(router, http.MethodGet, "/api/v1/bookings/id/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListByEmployee(t *testing.T) {
	var gotLimit int
	var gotOffset int64
	svc := &mockBookingService{
		listFunc: func(_ context.Context, employeeID int64, limit int, offset int64) ([]*model.Booking, int64, error) {
			gotLimit, gotOffset = limit, offset
			return []*model.Booking{{ID: "b-1", EmployeeID: employeeID}}, 5, nil
		},
	}
	router := newRouter(svc)

	rec := serve(router, http.MethodGet, "/api/v1/bookings/employee/7?limit=500&offset=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, gotLimit)
	assert.Equal(t, int64(2), gotOffset)

	var body struct {
		Data       []BookingResponse `json:"data"`
		TotalCount int64             `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(5), body.TotalCount)
	require.Len(t, body.Data, 1)

	rec = serve(router, http.MethodGet, "/api/v1/bookings/employee/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/bookings/employee/7?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailableVehicles(t *testing.T) {
	svc := &mockBookingService{
		findAvailableFunc: func(_ context.Context, employeeID int64, start, end time.Time) ([]*model.Vehicle, error) {
			if employeeID != 7 {
				return nil, apperrors.EmployeeNotFound(employeeID)
			}
			return nil, nil
		},
	}
	router := newRouter(svc)

	rec := serve(router, http.MethodGet, "/api/v1/vehicles/available?employee_id=7&start_date=2026-05-04T09:00&end_date=2026-05-04T10:00", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": []}`, rec.Body.String())

	rec = serve(router, http.MethodGet, "/api/v1/vehicles/available?employee_id=8&start_date=2026-05-04T09:00&end_date=2026-05-04T10:00", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/vehicles/available?employee_id=7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Details, "start_date")
}

type mockPinger struct {
	pingFunc func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.pingFunc(ctx)
}

func TestHealthHandler(t *testing.T) {
	pinger := &mockPinger{pingFunc: func(context.Context) error { return nil }}
	router := httprouter.New()
	NewHealthHandler(pinger, logger.Discard()).RegisterRoutes(router)

	rec := serve(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready"`)

	pinger.pingFunc = func(context.Context) error { return errors.New("no route to host") }
	rec = serve(router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestParseInstant(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Time
		wantErr bool
	}{
		{raw: "2026-05-04T09:00:00Z", want: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		{raw: "2026-05-04T09:00:00+01:00", want: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)},
		{raw: "2026-05-04T09:00:00", want: time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)},
		{raw: "2026-05-04T09:00", want: time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)},
		{raw: " 2026-05-04 09:00:00 ", want: time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)},
		{raw: "", wantErr: true},
		{raw: "04.05.2026 09:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseInstant(tt.raw, moscow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
