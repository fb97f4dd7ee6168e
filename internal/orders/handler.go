package orders

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/ledger"
	"github.com/savor-erp/savor-erp/internal/platform/httpx"
)

// Handler exposes order placement and kitchen workflow endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes attaches order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.place)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/status", h.updateStatus)
}

type lineRequest struct {
	MenuItemID int64               `json:"menuItemId" validate:"required,gt=0"`
	Quantity   float64             `json:"quantity" validate:"required,gt=0"`
	Selections []catalog.Selection `json:"selections"`
}

type paymentRequest struct {
	Method PaymentMethod `json:"method" validate:"required,oneof=CASH CARD QR"`
	Amount float64       `json:"amount" validate:"required,gt=0"`
}

type placeOrderRequest struct {
	BranchID    int64            `json:"branchId" validate:"required,gt=0"`
	WarehouseID int64            `json:"warehouseId" validate:"required,gt=0"`
	Type        Type             `json:"type" validate:"required,oneof=DINE_IN TAKEAWAY DELIVERY"`
	TableNumber string           `json:"tableNumber"`
	CustomerID  *int64           `json:"customerId"`
	Lines       []lineRequest    `json:"lines" validate:"required,min=1,dive"`
	Payments    []paymentRequest `json:"payments" validate:"required,min=1,dive"`
	Discount    float64          `json:"discount" validate:"gte=0,lte=1"`
	Notes       string           `json:"notes"`
	Offline     bool             `json:"offline"`
}

func (h *Handler) place(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PlaceOrderInput{
		BranchID:    req.BranchID,
		WarehouseID: req.WarehouseID,
		Type:        req.Type,
		TableNumber: req.TableNumber,
		CustomerID:  req.CustomerID,
		Discount:    req.Discount,
		Notes:       req.Notes,
		Offline:     req.Offline,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			Selections: line.Selections,
		})
	}
	for _, p := range req.Payments {
		input.Payments = append(input.Payments, Payment{Method: p.Method, Amount: p.Amount})
	}
	order, err := h.service.PlaceOrder(r.Context(), input)
	if err != nil {
		respondOrderError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	list, err := h.service.List(r.Context(), status, 50)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a uuid")
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondOrderError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type statusRequest struct {
	Status Status `json:"status" validate:"required,oneof=PENDING PREPARING READY DELIVERED CANCELLED"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a uuid")
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		respondOrderError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func respondOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, catalog.ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrPaymentMismatch),
		errors.Is(err, ErrItemUnavailable),
		errors.Is(err, catalog.ErrUnknownSelection):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ledger.ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
