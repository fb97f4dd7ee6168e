package assistant

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/savor-erp/savor-erp/internal/platform/httpx"
)

// Handler exposes assistant propose/preview/execute endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes attaches assistant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/propose", h.propose)
	r.Post("/preview", h.preview)
	r.Post("/execute", h.execute)
}

type proposeRequest struct {
	Message string `json:"message" validate:"required"`
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	action, decision, narration, err := h.service.Propose(r.Context(), req.Message)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"action":    action,
		"decision":  decision,
		"narration": narration,
	})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var action Action
	if err := httpx.DecodeJSON(r, &action); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	decision, err := h.service.Preview(r.Context(), action)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	var action Action
	if err := httpx.DecodeJSON(r, &action); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Execute(r.Context(), action)
	if err != nil {
		switch {
		case errors.Is(err, ErrActionBlocked), errors.Is(err, ErrMalformedAction):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Action Blocked", err.Error())
		case errors.Is(err, ErrPermissionDenied):
			httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
		default:
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
