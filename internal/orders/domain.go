package orders

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/savor-erp/savor-erp/internal/catalog"
)

// Type distinguishes the service styles an order can be placed under.
type Type string

const (
	TypeDineIn   Type = "DINE_IN"
	TypeTakeaway Type = "TAKEAWAY"
	TypeDelivery Type = "DELIVERY"
)

// Status tracks the kitchen workflow.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// SyncStatus tracks whether the order's downstream effects have been applied.
type SyncStatus string

const (
	// SyncSynced means stock, ledger and audit effects are all applied.
	SyncSynced SyncStatus = "SYNCED"
	// SyncPending means the placement is buffered for replay; no stock or
	// ledger effects exist yet.
	SyncPending SyncStatus = "PENDING_SYNC"
)

// transitions is the closed set of allowed status moves. Delivered and
// cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentMethod enumerates accepted tenders.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
	PaymentQR   PaymentMethod = "QR"
)

// Payment is one tender against an order; split payments hold several.
type Payment struct {
	Method PaymentMethod `json:"method"`
	Amount float64       `json:"amount"`
}

// Line is one sold menu item with its chosen modifiers. UnitPrice and
// LineTotal are captured at placement time so later price changes never
// rewrite history.
type Line struct {
	MenuItemID int64               `json:"menu_item_id"`
	Name       string              `json:"name"`
	Quantity   float64             `json:"quantity"`
	Selections []catalog.Selection `json:"selections,omitempty"`
	UnitPrice  float64             `json:"unit_price"`
	LineTotal  float64             `json:"line_total"`
}

// Order is one placed ticket.
type Order struct {
	ID          uuid.UUID
	Number      string
	BranchID    int64
	WarehouseID int64
	Type        Type
	Status      Status
	SyncStatus  SyncStatus
	TableNumber string
	CustomerID  *int64
	Lines       []Line
	Payments    []Payment
	Subtotal    float64
	Tax         float64
	Discount    float64
	Total       float64
	Notes       string
	PlacedBy    int64
	PlacedAt    time.Time
	UpdatedAt   time.Time
}

// SalesSummary aggregates placed orders over a period.
type SalesSummary struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Orders  int       `json:"orders"`
	Revenue float64   `json:"revenue"`
}

var (
	// ErrEmptyCart indicates a placement with no lines.
	ErrEmptyCart = errors.New("orders: order has no lines")
	// ErrPaymentMismatch indicates tenders that do not cover the total.
	ErrPaymentMismatch = errors.New("orders: payments do not match order total")
	// ErrInvalidTransition indicates a disallowed status move.
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	// ErrOrderNotFound indicates a missing order.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrItemUnavailable indicates a line referencing an unavailable item.
	ErrItemUnavailable = errors.New("orders: menu item unavailable")
)
