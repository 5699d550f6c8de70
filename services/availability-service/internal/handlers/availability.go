package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/homeservices/libs/httpx"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/booking"
)

type AvailabilityService interface {
	AvailableSlots(ctx context.Context, contractorID, startDate, endDate, serviceType string) (map[string]availability.DayAvailability, error)
	CheckSlot(ctx context.Context, contractorID, date, clock string, durationMinutes int) (booking.SlotStatus, error)
	NextAvailableDates(ctx context.Context, contractorID string, count int) ([]booking.DateSummary, error)
	Book(ctx context.Context, req booking.Request, idempotencyKey string) (booking.Confirmation, bool, error)
}

type AvailabilityHandler struct {
	svc    AvailabilityService
	logger *slog.Logger
}

func NewAvailabilityHandler(svc AvailabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{svc: svc, logger: logger}
}

type slotsResponse struct {
	Slots map[string]availability.DayAvailability `json:"slots"`
	Error string                                  `json:"error,omitempty"`
}

type checkResponse struct {
	Available bool                `json:"available"`
	Reason    availability.Reason `json:"reason"`
	Error     string              `json:"error,omitempty"`
}

type nextDatesResponse struct {
	Dates []booking.DateSummary `json:"dates"`
	Error string                `json:"error,omitempty"`
}

const (
	defaultNextDates = 5
	maxNextDates     = 31
	maxCheckDuration = 8 * 60
)

// Slots serves GET /api/v1/public/availability.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	contractorID := strings.TrimSpace(q.Get("contractor_id"))
	startDate := strings.TrimSpace(q.Get("start_date"))
	if contractorID == "" || startDate == "" {
		httpx.WriteError(w, http.StatusBadRequest, "contractor_id and start_date are required")
		return
	}

	slots, err := h.svc.AvailableSlots(r.Context(), contractorID, startDate, strings.TrimSpace(q.Get("end_date")), strings.TrimSpace(q.Get("service_type")))
	if err != nil {
		status, msg := h.queryError(r, contractorID, err)
		if status != http.StatusOK {
			httpx.WriteError(w, status, msg)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, slotsResponse{Slots: map[string]availability.DayAvailability{}, Error: msg})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Slots: slots})
}

// Check serves GET /api/v1/public/availability/check.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	contractorID := strings.TrimSpace(q.Get("contractor_id"))
	date := strings.TrimSpace(q.Get("date"))
	clock := strings.TrimSpace(q.Get("time"))
	if contractorID == "" || date == "" || clock == "" {
		httpx.WriteError(w, http.StatusBadRequest, "contractor_id, date and time are required")
		return
	}
	duration := 0
	if raw := strings.TrimSpace(q.Get("duration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxCheckDuration {
			httpx.WriteError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		duration = n
	}

	st, err := h.svc.CheckSlot(r.Context(), contractorID, date, clock, duration)
	if err != nil {
		for _, notBookable := range []error{booking.ErrSlotNotFound, booking.ErrOutsideWindow} {
			if errors.Is(err, notBookable) {
				httpx.WriteJSON(w, http.StatusOK, map[string]any{"available": false, "reason": notBookable.Error()})
				return
			}
		}
		status, msg := h.queryError(r, contractorID, err)
		if status != http.StatusOK {
			httpx.WriteError(w, status, msg)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, checkResponse{Error: msg})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Available: st.Available, Reason: st.Reason})
}

// NextDates serves GET /api/v1/public/availability/next.
func (h *AvailabilityHandler) NextDates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	contractorID := strings.TrimSpace(q.Get("contractor_id"))
	if contractorID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "contractor_id is required")
		return
	}
	count := defaultNextDates
	if raw := strings.TrimSpace(q.Get("count")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxNextDates {
			httpx.WriteError(w, http.StatusBadRequest, "count must be between 1 and 31")
			return
		}
		count = n
	}

	dates, err := h.svc.NextAvailableDates(r.Context(), contractorID, count)
	if err != nil {
		status, msg := h.queryError(r, contractorID, err)
		if status != http.StatusOK {
			httpx.WriteError(w, status, msg)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, nextDatesResponse{Dates: []booking.DateSummary{}, Error: msg})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nextDatesResponse{Dates: dates})
}

// queryError maps a read-path error to a status and message. Anything other than a caller
// mistake is reported with 200 so the embedded widget can always render.
func (h *AvailabilityHandler) queryError(r *http.Request, contractorID string, err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, booking.ErrNotAvailable):
		return http.StatusOK, booking.ErrNotAvailable.Error()
	case errors.Is(err, booking.ErrBookingDisabled):
		return http.StatusOK, booking.ErrBookingDisabled.Error()
	case errors.Is(err, booking.ErrServiceNotAllowed):
		return http.StatusOK, booking.ErrServiceNotAllowed.Error()
	case errors.Is(err, booking.ErrOutsideWindow):
		return http.StatusOK, booking.ErrOutsideWindow.Error()
	case errors.Is(err, booking.ErrUnavailable):
		h.logger.Warn("availability degraded", "request_id", httpx.RequestIDFromContext(r.Context()), "contractor_id", contractorID, "err", err)
		return http.StatusOK, booking.ErrUnavailable.Error()
	default:
		h.logger.Error("availability query failed", "request_id", httpx.RequestIDFromContext(r.Context()), "contractor_id", contractorID, "err", err)
		return http.StatusOK, booking.ErrUnavailable.Error()
	}
}
