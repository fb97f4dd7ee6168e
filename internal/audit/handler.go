package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/savor-erp/savor-erp/internal/platform/httpx"
)

// Handler exposes the forensics timeline.
type Handler struct {
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes attaches audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/timeline", h.timeline)
}

type timelineRowDTO struct {
	ID        string         `json:"id"`
	At        time.Time      `json:"at"`
	EventType string         `json:"eventType"`
	UserID    int64          `json:"userId"`
	UserName  string         `json:"userName"`
	Role      string         `json:"role"`
	BranchID  int64          `json:"branchId"`
	DeviceID  string         `json:"deviceId,omitempty"`
	Payload   Payload        `json:"payload"`
	Meta      map[string]any `json:"meta,omitempty"`
	Tampered  bool           `json:"tampered"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := TimelineFilter{
		EventType: EventType(q.Get("event")),
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC3339")
			return
		}
		filter.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC3339")
			return
		}
		filter.To = t
	}
	if v := q.Get("user"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user must be an integer id")
			return
		}
		filter.UserID = id
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	rows, err := h.service.Timeline(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]timelineRowDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, timelineRowDTO{
			ID:        row.Record.ID.String(),
			At:        row.Record.At,
			EventType: string(row.Record.EventType),
			UserID:    row.Record.UserID,
			UserName:  row.Record.UserName,
			Role:      row.Record.Role,
			BranchID:  row.Record.BranchID,
			DeviceID:  row.Record.DeviceID,
			Payload:   row.Record.Payload,
			Meta:      row.Record.Meta,
			Tampered:  row.Tampered,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": out})
}
