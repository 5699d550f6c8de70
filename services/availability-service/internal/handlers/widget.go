package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/homeservices/libs/httpx"
	"github.com/md-rashed-zaman/homeservices/services/availability-service/internal/widget"
)

type WidgetHandler struct {
	reader    SettingsReader
	scriptURL string
	logger    *slog.Logger
}

func NewWidgetHandler(reader SettingsReader, scriptURL string, logger *slog.Logger) *WidgetHandler {
	return &WidgetHandler{reader: reader, scriptURL: scriptURL, logger: logger}
}

// Embed serves GET /api/v1/public/widget/embed and returns the snippet as text.
// brand_color defaults to the contractor's customization.
func (h *WidgetHandler) Embed(w http.ResponseWriter, r *http.Request) {
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

	color := strings.TrimSpace(q.Get("brand_color"))
	if color == "" {
		st := h.reader.Settings(r.Context(), contractorID)
		if st.Err != nil {
			h.logger.Debug("embed using default brand color", "contractor_id", contractorID, "err", st.Err)
		}
		color = st.Policy.Customization.BrandColor
	}
	var services []string
	if raw := q.Get("services"); raw != "" {
		services = strings.Split(raw, ",")
	}

	snippet, err := widget.Snippet(widget.EmbedConfig{
		ScriptURL:    h.scriptURL,
		ContractorID: contractorID,
		BrandColor:   color,
		Services:     services,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snippet))
}
