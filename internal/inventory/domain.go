package inventory

import (
	"errors"
	"time"
)

// MovementKind enumerates supported stock movements.
type MovementKind string

const (
	// MovementAdjustment is a manual correction, positive or negative.
	MovementAdjustment MovementKind = "ADJUSTMENT"
	// MovementTransfer moves stock between warehouses.
	MovementTransfer MovementKind = "TRANSFER"
	// MovementPurchase is an inbound receipt.
	MovementPurchase MovementKind = "PURCHASE"
	// MovementSaleConsumption is raw-material usage from a sold order.
	MovementSaleConsumption MovementKind = "SALE_CONSUMPTION"
	// MovementWaste writes off spoiled or damaged stock.
	MovementWaste MovementKind = "WASTE"
)

// Item is a stock-keeping unit. Warehouse quantities live in Balance rows
// and are mutated only through movements.
type Item struct {
	ID                int64
	SKU               string
	Name              string
	Unit              string
	Category          string
	LowStockThreshold float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Balance summarises stock per (item, warehouse) with a moving average cost.
type Balance struct {
	ItemID      int64
	WarehouseID int64
	Qty         float64
	AvgCost     float64
	UpdatedAt   time.Time
}

// Movement is one applied stock delta.
type Movement struct {
	ID          int64
	Kind        MovementKind
	ItemID      int64
	WarehouseID int64
	Delta       float64
	UnitCost    float64
	BalanceQty  float64
	Reason      string
	RefType     string
	RefID       string
	PostedAt    time.Time
	CreatedBy   int64
}

// LowStockRow reports an item under its threshold in a warehouse.
type LowStockRow struct {
	ItemID      int64
	SKU         string
	Name        string
	WarehouseID int64
	Qty         float64
	Threshold   float64
}

var (
	// ErrInsufficientStock is returned when a decrease exceeds available
	// quantity and clamping is disabled.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a zero or wrongly signed delta.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidUnitCost indicates a negative cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrItemNotFound indicates a missing stock item.
	ErrItemNotFound = errors.New("inventory: item not found")
)
