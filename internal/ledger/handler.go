package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/savor-erp/savor-erp/internal/platform/httpx"
	"github.com/savor-erp/savor-erp/internal/shared"
)

// Handler exposes financial ledger endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	printer  *message.Printer
}

// NewHandler constructs the handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		printer:  message.NewPrinter(language.English),
	}
}

// MountRoutes attaches ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.postEntry)
	r.Get("/entries", h.listEntries)
	r.Get("/trial-balance", h.trialBalance)
	r.Post("/close", h.closePeriod)
}

type entryRequest struct {
	Date            string  `json:"date"`
	Description     string  `json:"description" validate:"required"`
	DebitAccountID  int64   `json:"debitAccountId" validate:"required"`
	CreditAccountID int64   `json:"creditAccountId" validate:"required,nefield=DebitAccountID"`
	Amount          float64 `json:"amount" validate:"gt=0"`
	ReferenceType   string  `json:"referenceType"`
	ReferenceID     string  `json:"referenceId"`
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := EntryInput{
		Description:     req.Description,
		DebitAccountID:  req.DebitAccountID,
		CreditAccountID: req.CreditAccountID,
		Amount:          req.Amount,
		ReferenceType:   req.ReferenceType,
		ReferenceID:     req.ReferenceID,
	}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		input.Date = date
	}
	if actor := shared.ActorFromContext(r.Context()); actor != nil {
		input.ActorID = actor.UserID
	}
	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.Entries(r.Context(), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type trialBalanceRowDTO struct {
	AccountID int64   `json:"accountId"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Balance   float64 `json:"balance"`
	Debits    float64 `json:"debits"`
	Credits   float64 `json:"credits"`
	Rollup    float64 `json:"rollup"`
	Display   string  `json:"display"`
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.TrialBalance(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows := make([]trialBalanceRowDTO, 0, len(tb.Rows))
	for _, row := range tb.Rows {
		rows = append(rows, trialBalanceRowDTO{
			AccountID: row.Account.ID,
			Code:      row.Account.Code,
			Name:      row.Account.Name,
			Type:      string(row.Account.Type),
			Balance:   row.Account.Balance,
			Debits:    row.Debits,
			Credits:   row.Credits,
			Rollup:    row.Rollup,
			Display:   h.printer.Sprint(number.Decimal(row.Rollup, number.MaxFractionDigits(2))),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rows":         rows,
		"totalDebits":  tb.TotalDebits,
		"totalCredits": tb.TotalCredits,
		"balanced":     tb.TotalDebits == tb.TotalCredits,
	})
}

type closeRequest struct {
	Through string `json:"through" validate:"required"`
	Reason  string `json:"reason"`
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	through, err := time.Parse("2006-01-02", req.Through)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "through must be YYYY-MM-DD")
		return
	}
	if err := h.service.ClosePeriod(r.Context(), through, req.Reason); err != nil {
		respondLedgerError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"closedThrough": req.Through})
}

func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSameAccount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
