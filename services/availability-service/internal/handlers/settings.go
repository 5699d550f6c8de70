package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/homeservices/libs/httpx"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/policy"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/schedule"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/storage"
)

// ContractorIDHeader carries the authenticated contractor, set by the gateway.
const ContractorIDHeader = "X-Contractor-Id"

type SettingsReader interface {
	Settings(ctx context.Context, contractorID string) policy.Settings
}

type SettingsWriter interface {
	SaveSettings(ctx context.Context, contractorID, timezone string, p schedule.Policy) error
	SaveWorkingHours(ctx context.Context, contractorID string, h schedule.WeeklyHours) error
	ReplaceServiceTypes(ctx context.Context, contractorID string, services []schedule.ServiceType) ([]schedule.ServiceType, error)
}

type SettingsHandler struct {
	reader SettingsReader
	writer SettingsWriter
	logger *slog.Logger
}

func NewSettingsHandler(reader SettingsReader, writer SettingsWriter, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{reader: reader, writer: writer, logger: logger}
}

type settingsResponse struct {
	policy.Settings
	Configured bool `json:"configured"`
}

type settingsUpdate struct {
	Timezone string          `json:"timezone"`
	Policy   schedule.Policy `json:"policy"`
}

type serviceTypesBody struct {
	ServiceTypes []schedule.ServiceType `json:"service_types"`
}

// BookingSettings serves GET and PUT /api/v1/contractor/booking-settings.
func (h *SettingsHandler) BookingSettings(w http.ResponseWriter, r *http.Request) {
	contractorID, ok := contractorFromHeader(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.writeSettings(w, r, contractorID)
	case http.MethodPut:
		// PUT replaces the policy; omitted fields take their defaults.
		body := settingsUpdate{Policy: schedule.DefaultPolicy()}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		body.Timezone = strings.TrimSpace(body.Timezone)
		if body.Timezone != "" {
			if _, err := time.LoadLocation(body.Timezone); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "unknown timezone")
				return
			}
		}
		if err := body.Policy.Validate(); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.writer.SaveSettings(r.Context(), contractorID, body.Timezone, body.Policy); err != nil {
			h.writeFailure(w, r, contractorID, "save booking settings", err)
			return
		}
		h.writeSettings(w, r, contractorID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// WorkingHours serves PUT /api/v1/contractor/working-hours. Days absent from the body keep their current hours.
func (h *SettingsHandler) WorkingHours(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	contractorID, ok := contractorFromHeader(w, r)
	if !ok {
		return
	}
	current := h.reader.Settings(r.Context(), contractorID)
	if errors.Is(current.Err, policy.ErrSettingsUnavailable) {
		httpx.WriteError(w, http.StatusServiceUnavailable, "settings temporarily unavailable")
		return
	}

	hours := current.Hours
	if err := httpx.DecodeJSON(r, &hours); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid working hours: "+err.Error())
		return
	}
	if err := hours.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.writer.SaveWorkingHours(r.Context(), contractorID, hours); err != nil {
		h.writeFailure(w, r, contractorID, "save working hours", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"working_hours": hours})
}

// ServiceTypes serves PUT /api/v1/contractor/service-types.
func (h *SettingsHandler) ServiceTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	contractorID, ok := contractorFromHeader(w, r)
	if !ok {
		return
	}
	var body serviceTypesBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	for i, svc := range body.ServiceTypes {
		if strings.TrimSpace(svc.Name) == "" || svc.DurationMinutes <= 0 || svc.DurationMinutes > 24*60 {
			httpx.WriteError(w, http.StatusBadRequest, "service_types entries need a name and a duration between 1 and 1440 minutes")
			return
		}
		body.ServiceTypes[i].Name = strings.TrimSpace(svc.Name)
	}

	saved, err := h.writer.ReplaceServiceTypes(r.Context(), contractorID, body.ServiceTypes)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateServiceType) {
			httpx.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeFailure(w, r, contractorID, "replace service types", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, serviceTypesBody{ServiceTypes: saved})
}

func (h *SettingsHandler) writeSettings(w http.ResponseWriter, r *http.Request, contractorID string) {
	st := h.reader.Settings(r.Context(), contractorID)
	if errors.Is(st.Err, policy.ErrSettingsUnavailable) {
		h.logger.Warn("settings read failed", "request_id", httpx.RequestIDFromContext(r.Context()), "contractor_id", contractorID, "err", st.Err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "settings temporarily unavailable")
		return
	}
	if st.Services == nil {
		st.Services = []schedule.ServiceType{}
	}
	httpx.WriteJSON(w, http.StatusOK, settingsResponse{Settings: st, Configured: st.Err == nil})
}

func (h *SettingsHandler) writeFailure(w http.ResponseWriter, r *http.Request, contractorID, op string, err error) {
	h.logger.Error(op+" failed", "request_id", httpx.RequestIDFromContext(r.Context()), "contractor_id", contractorID, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, op+" failed")
}

func contractorFromHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ContractorIDHeader))
	if id == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing contractor identity")
		return "", false
	}
	return id, true
}
