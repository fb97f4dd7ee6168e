package ledger

import (
	"context"
	"fmt"

	"github.com/savor-erp/savor-erp/internal/inventory"
)

// CostOfSalesRecorder posts a cost-of-goods-sold entry whenever stock is
// consumed for a sale. It implements inventory.IntegrationHandler so the
// stock module never imports the ledger directly.
type CostOfSalesRecorder struct {
	svc                *Service
	cogsAccountID      int64
	inventoryAccountID int64
}

func NewCostOfSalesRecorder(svc *Service, cogsAccountID, inventoryAccountID int64) *CostOfSalesRecorder {
	return &CostOfSalesRecorder{
		svc:                svc,
		cogsAccountID:      cogsAccountID,
		inventoryAccountID: inventoryAccountID,
	}
}

// HandleSaleConsumptionPosted debits COGS and credits the inventory asset
// account for the consumed value. A zero total posts nothing; items with no
// recorded cost carry no value out of stock.
func (r *CostOfSalesRecorder) HandleSaleConsumptionPosted(ctx context.Context, evt inventory.SaleConsumptionEvent) error {
	if evt.TotalCOGS <= 0 {
		return nil
	}
	_, err := r.svc.Post(ctx, EntryInput{
		Date:            evt.PostedAt,
		Description:     fmt.Sprintf("cost of goods sold for %s %s", evt.RefType, evt.RefID),
		DebitAccountID:  r.cogsAccountID,
		CreditAccountID: r.inventoryAccountID,
		Amount:          evt.TotalCOGS,
		ReferenceType:   evt.RefType,
		ReferenceID:     evt.RefID,
		ActorID:         evt.ActorID,
	})
	return err
}
