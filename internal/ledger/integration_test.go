package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savor-erp/savor-erp/internal/inventory"
)

func TestCostOfSalesRecorderPostsAgainstInventory(t *testing.T) {
	repo := chart()
	svc := NewService(repo, nil)
	recorder := NewCostOfSalesRecorder(svc, 5, 3)

	err := recorder.HandleSaleConsumptionPosted(context.Background(), inventory.SaleConsumptionEvent{
		RefType:   "order",
		RefID:     "ord-1",
		TotalCOGS: 18,
		PostedAt:  time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	require.Equal(t, int64(5), entry.DebitAccountID)
	require.Equal(t, int64(3), entry.CreditAccountID)
	require.InDelta(t, 18, entry.Amount, 0.001)
	require.Equal(t, "ord-1", entry.ReferenceID)

	require.InDelta(t, 18, repo.accounts[5].Balance, 0.001)
	require.InDelta(t, -18, repo.accounts[3].Balance, 0.001)
}

func TestCostOfSalesRecorderSkipsZeroValueConsumption(t *testing.T) {
	repo := chart()
	svc := NewService(repo, nil)
	recorder := NewCostOfSalesRecorder(svc, 5, 3)

	err := recorder.HandleSaleConsumptionPosted(context.Background(), inventory.SaleConsumptionEvent{
		RefType: "order",
		RefID:   "ord-2",
	})
	require.NoError(t, err)
	require.Empty(t, repo.entries)
}
