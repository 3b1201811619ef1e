package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"fleetbook/internal/bookings/service"
	apperrors "fleetbook/pkg/errors"
	httputil "fleetbook/pkg/http"
	"fleetbook/pkg/logger"
	"fleetbook/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type bookVehicleRequest struct {
	EmployeeID int64  `json:"employee_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

type BookingResponse struct {
	BookingID  string    `json:"booking_id"`
	EmployeeID int64     `json:"employee_id"`
	VehicleID  int64     `json:"vehicle_id"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	CreatedAt  time.Time `json:"created_at"`
}

func toResponse(b *model.Booking) BookingResponse {
	return BookingResponse{
		BookingID:  b.ID,
		EmployeeID: b.EmployeeID,
		VehicleID:  b.VehicleID,
		StartDate:  b.StartTime,
		EndDate:    b.EndTime,
		CreatedAt:  b.CreatedAt,
	}
}

type BookingHandler struct {
	service  service.BookingService
	location *time.Location
	log      *logger.Logger
}

func NewBookingHandler(service service.BookingService, location *time.Location, log *logger.Logger) *BookingHandler {
	if location == nil {
		location = time.UTC
	}
	return &BookingHandler{
		service:  service,
		location: location,
		log:      log,
	}
}

func (h *BookingHandler) BookVehicle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req bookVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidRequest("Invalid request body", map[string]any{"body": err.Error()}))
		return
	}

	start, end, err := h.parseInterval(req.StartDate, req.EndDate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.BookVehicle(r.Context(), req.EmployeeID, start, end)
	if err != nil {
		h.log.Debug("Booking request rejected", "handler", "BookVehicle", "outcome", service.OutcomeOf(err).String())
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteCreated(w, toResponse(res.Booking))
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetBooking(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteSuccess(w, toResponse(booking))
}

func (h *BookingHandler) ListByEmployee(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	employeeID, err := httputil.ParseID("employee_id", ps.ByName("employee_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bookings, total, err := h.service.ListEmployeeBookings(r.Context(), employeeID, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	data := make([]BookingResponse, 0, len(bookings))
	for _, b := range bookings {
		data = append(data, toResponse(b))
	}
	httputil.WritePaginated(w, data, total, limit, offset)
}

func (h *BookingHandler) AvailableVehicles(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	employeeID, err := httputil.ParseID("employee_id", query.Get("employee_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	start, end, err := h.parseInterval(query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	vehicles, err := h.service.FindAvailable(r.Context(), employeeID, start, end)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if vehicles == nil {
		vehicles = []*model.Vehicle{}
	}

	httputil.WriteSuccess(w, vehicles)
}

func (h *BookingHandler) parseInterval(rawStart, rawEnd string) (time.Time, time.Time, error) {
	details := map[string]any{}

	start, err := parseInstant(rawStart, h.location)
	if err != nil {
		details["start_date"] = err.Error()
	}
	end, err := parseInstant(rawEnd, h.location)
	if err != nil {
		details["end_date"] = err.Error()
	}

	if len(details) > 0 {
		return time.Time{}, time.Time{}, apperrors.InvalidRequest("Invalid date", details)
	}
	return start, end, nil
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.BookVehicle)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.GET("/api/v1/bookings/employee/:employee_id", h.ListByEmployee)
	router.GET("/api/v1/vehicles/available", h.AvailableVehicles)
}
