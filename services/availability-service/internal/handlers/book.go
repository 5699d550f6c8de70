package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/homeservices/libs/httpx"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/booking"
)

const maxIdempotencyKeyLen = 200

// Book serves POST /api/v1/public/book.
func (h *AvailabilityHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req booking.Request
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(req.ContractorID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "contractor_id is required")
		return
	}
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		httpx.WriteError(w, http.StatusBadRequest, "idempotency key too long")
		return
	}

	conf, replayed, err := h.svc.Book(r.Context(), req, key)
	if err != nil {
		status, msg := bookError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("booking failed", "request_id", httpx.RequestIDFromContext(r.Context()), "contractor_id", req.ContractorID, "err", err)
		}
		httpx.WriteError(w, status, msg)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.WriteJSON(w, http.StatusCreated, conf)
}

var bookStatuses = []struct {
	err    error
	status int
}{
	{booking.ErrNotAvailable, http.StatusForbidden},
	{booking.ErrBookingDisabled, http.StatusForbidden},
	{booking.ErrSlotTaken, http.StatusConflict},
	{booking.ErrPastCutoff, http.StatusUnprocessableEntity},
	{booking.ErrOutsideWindow, http.StatusUnprocessableEntity},
	{booking.ErrSlotNotFound, http.StatusUnprocessableEntity},
	{booking.ErrServiceNotAllowed, http.StatusUnprocessableEntity},
	{booking.ErrUnavailable, http.StatusServiceUnavailable},
}

func bookError(err error) (int, string) {
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Error()
	}
	if errors.Is(err, booking.ErrInvalidInput) {
		return http.StatusBadRequest, err.Error()
	}
	for _, m := range bookStatuses {
		if errors.Is(err, m.err) {
			return m.status, m.err.Error()
		}
	}
	return http.StatusInternalServerError, "failed to create booking"
}
