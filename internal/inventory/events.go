package inventory

import (
	"context"
	"time"
)

// SaleConsumptionEvent is emitted once per sale after all consumption
// movements committed, carrying the total cost of goods sold.
type SaleConsumptionEvent struct {
	RefType   string
	RefID     string
	BranchID  int64
	TotalCOGS float64
	ActorID   int64
	PostedAt  time.Time
}

// IntegrationHandler receives inventory events for financial integration.
type IntegrationHandler interface {
	HandleSaleConsumptionPosted(ctx context.Context, evt SaleConsumptionEvent) error
}
