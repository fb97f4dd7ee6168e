package inventory

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/savor-erp/savor-erp/internal/platform/httpx"
	"github.com/savor-erp/savor-erp/internal/shared"
)

// Handler exposes stock ledger endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes attaches inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.postMovement)
	r.Post("/transfers", h.postTransfer)
	r.Get("/items/{id}/balances", h.balances)
	r.Get("/items/{id}/movements", h.movements)
	r.Get("/low-stock", h.lowStock)
}

type movementRequest struct {
	Kind        string  `json:"kind" validate:"required,oneof=ADJUSTMENT PURCHASE WASTE"`
	ItemID      int64   `json:"itemId" validate:"required"`
	WarehouseID int64   `json:"warehouseId" validate:"required"`
	Delta       float64 `json:"delta" validate:"required"`
	UnitCost    float64 `json:"unitCost" validate:"gte=0"`
	Reason      string  `json:"reason"`
}

type transferRequest struct {
	ItemID       int64   `json:"itemId" validate:"required"`
	Qty          float64 `json:"qty" validate:"gt=0"`
	SrcWarehouse int64   `json:"srcWarehouse" validate:"required"`
	DstWarehouse int64   `json:"dstWarehouse" validate:"required,nefield=SrcWarehouse"`
	Reason       string  `json:"reason"`
}

func (h *Handler) postMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var actorID int64
	if actor := shared.ActorFromContext(r.Context()); actor != nil {
		actorID = actor.UserID
	}
	movement, err := h.service.ApplyMovement(r.Context(), MovementInput{
		Kind:        MovementKind(req.Kind),
		ItemID:      req.ItemID,
		WarehouseID: req.WarehouseID,
		Delta:       req.Delta,
		UnitCost:    req.UnitCost,
		Reason:      req.Reason,
		ActorID:     actorID,
	})
	if err != nil {
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) postTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var actorID int64
	if actor := shared.ActorFromContext(r.Context()); actor != nil {
		actorID = actor.UserID
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		ItemID:       req.ItemID,
		Qty:          req.Qty,
		SrcWarehouse: req.SrcWarehouse,
		DstWarehouse: req.DstWarehouse,
		Reason:       req.Reason,
		ActorID:      actorID,
	})
	if err != nil {
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"out": out, "in": in})
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	balances, err := h.service.Balances(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": balances})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse"), 10, 64)
	if warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "warehouse query parameter required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.Movements(r.Context(), id, warehouseID, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.LowStock(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func respondStockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
