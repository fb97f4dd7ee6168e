package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	balances  map[string]Balance
	movements []Movement
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{balances: make(map[string]Balance)}
}

func balanceKey(itemID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d", itemID, warehouseID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetItem(ctx context.Context, itemID int64) (Item, error) {
	return Item{ID: itemID, Name: fmt.Sprintf("item-%d", itemID), Unit: "kg"}, nil
}

func (r *memoryRepo) ListBalances(ctx context.Context, itemID int64) ([]Balance, error) {
	var out []Balance
	for _, b := range r.balances {
		if b.ItemID == itemID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListLowStock(ctx context.Context) ([]LowStockRow, error) {
	return nil, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, itemID, warehouseID int64, limit int) ([]Movement, error) {
	out := make([]Movement, 0, len(r.movements))
	for _, m := range r.movements {
		if m.ItemID == itemID && m.WarehouseID == warehouseID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, itemID, warehouseID int64) (Balance, error) {
	if b, ok := tx.repo.balances[balanceKey(itemID, warehouseID)]; ok {
		return b, nil
	}
	return Balance{ItemID: itemID, WarehouseID: warehouseID}, ErrBalanceNotFound
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance Balance) error {
	tx.repo.balances[balanceKey(balance.ItemID, balance.WarehouseID)] = balance
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextID++
	movement.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, movement)
	return tx.repo.nextID, nil
}

type capturedCOGS struct {
	events   []SaleConsumptionEvent
	failures int
}

func (c *capturedCOGS) HandleSaleConsumptionPosted(ctx context.Context, evt SaleConsumptionEvent) error {
	if c.failures > 0 {
		c.failures--
		return fmt.Errorf("ledger unreachable")
	}
	c.events = append(c.events, evt)
	return nil
}

func TestMovingAverageCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{}, nil)
	ctx := context.Background()

	m, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 1, WarehouseID: 1, Delta: 10, UnitCost: 5})
	require.NoError(t, err)
	require.InDelta(t, 10, m.BalanceQty, 0.0001)

	m, err = svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 1, WarehouseID: 1, Delta: 5, UnitCost: 8})
	require.NoError(t, err)
	require.InDelta(t, 15, m.BalanceQty, 0.0001)
	require.InDelta(t, 6.0, repo.balances[balanceKey(1, 1)].AvgCost, 0.0001)

	m, err = svc.ApplyMovement(ctx, MovementInput{Kind: MovementAdjustment, ItemID: 1, WarehouseID: 1, Delta: -6, Reason: "stocktake"})
	require.NoError(t, err)
	require.InDelta(t, 9, m.BalanceQty, 0.0001)
	require.InDelta(t, 6.0, m.UnitCost, 0.0001)
}

func TestUnderflowRejectedByDefault(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{}, nil)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 1, WarehouseID: 1, Delta: 3, UnitCost: 2})
	require.NoError(t, err)

	_, err = svc.ApplyMovement(ctx, MovementInput{Kind: MovementAdjustment, ItemID: 1, WarehouseID: 1, Delta: -8})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Balance untouched after the rejected movement.
	require.InDelta(t, 3, repo.balances[balanceKey(1, 1)].Qty, 0.0001)
}

func TestUnderflowClampsWhenAllowed(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{AllowClamp: true}, nil)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 1, WarehouseID: 1, Delta: 3, UnitCost: 2})
	require.NoError(t, err)

	m, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementAdjustment, ItemID: 1, WarehouseID: 1, Delta: -8, Reason: "set to -5"})
	require.NoError(t, err)
	require.InDelta(t, 0, m.BalanceQty, 0.0001)
	require.Contains(t, m.Reason, "shrinkage")
	require.InDelta(t, 0, repo.balances[balanceKey(1, 1)].Qty, 0.0001)
}

func TestTransferIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{}, nil)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 1, WarehouseID: 1, Delta: 20, UnitCost: 4})
	require.NoError(t, err)

	out, in, err := svc.Transfer(ctx, TransferInput{ItemID: 1, Qty: 5, SrcWarehouse: 1, DstWarehouse: 2})
	require.NoError(t, err)
	require.InDelta(t, 15, out.BalanceQty, 0.0001)
	require.InDelta(t, 5, in.BalanceQty, 0.0001)
	require.InDelta(t, 4, in.UnitCost, 0.0001)

	// Oversized transfer fails whole; destination unchanged.
	_, _, err = svc.Transfer(ctx, TransferInput{ItemID: 1, Qty: 50, SrcWarehouse: 1, DstWarehouse: 2})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.InDelta(t, 5, repo.balances[balanceKey(1, 2)].Qty, 0.0001)
}

func TestConsumeForSaleComputesCOGS(t *testing.T) {
	repo := newMemoryRepo()
	cogs := &capturedCOGS{}
	svc := NewService(repo, nil, nil, ServiceConfig{}, cogs)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 10, WarehouseID: 1, Delta: 100, UnitCost: 5})
	require.NoError(t, err)
	_, err = svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 11, WarehouseID: 1, Delta: 50, UnitCost: 2})
	require.NoError(t, err)

	movements, err := svc.ConsumeForSale(ctx, SaleConsumptionInput{
		WarehouseID: 1,
		BranchID:    3,
		RefID:       "ord-1",
		Lines: []ConsumptionLine{
			{ItemID: 10, Qty: 2},
			{ItemID: 11, Qty: 4},
		},
	})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.Len(t, cogs.events, 1)
	require.InDelta(t, 2*5+4*2, cogs.events[0].TotalCOGS, 0.001)
	require.Equal(t, "ord-1", cogs.events[0].RefID)
	require.InDelta(t, 98, repo.balances[balanceKey(10, 1)].Qty, 0.0001)
	require.InDelta(t, 46, repo.balances[balanceKey(11, 1)].Qty, 0.0001)
}

func TestConsumeForSaleRetryAfterCostPostingFailure(t *testing.T) {
	repo := newMemoryRepo()
	cogs := &capturedCOGS{failures: 1}
	svc := NewService(repo, nil, nil, ServiceConfig{}, cogs)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 10, WarehouseID: 1, Delta: 10, UnitCost: 5})
	require.NoError(t, err)

	input := SaleConsumptionInput{
		WarehouseID: 1,
		RefID:       "ord-3",
		Lines:       []ConsumptionLine{{ItemID: 10, Qty: 3}},
	}
	_, err = svc.ConsumeForSale(ctx, input)
	require.Error(t, err)

	// The failed attempt compensated its committed movements.
	require.InDelta(t, 10, repo.balances[balanceKey(10, 1)].Qty, 0.0001)
	require.InDelta(t, 5, repo.balances[balanceKey(10, 1)].AvgCost, 0.0001)
	require.Empty(t, cogs.events)

	// One logical sale of 3 units decrements stock once across the retry.
	movements, err := svc.ConsumeForSale(ctx, input)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.InDelta(t, 7, repo.balances[balanceKey(10, 1)].Qty, 0.0001)
	require.Len(t, cogs.events, 1)
	require.InDelta(t, 15, cogs.events[0].TotalCOGS, 0.001)
}

func TestConsumeForSaleRejectsUnderflowWholesale(t *testing.T) {
	repo := newMemoryRepo()
	cogs := &capturedCOGS{}
	svc := NewService(repo, nil, nil, ServiceConfig{}, cogs)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, MovementInput{Kind: MovementPurchase, ItemID: 10, WarehouseID: 1, Delta: 1, UnitCost: 5})
	require.NoError(t, err)

	_, err = svc.ConsumeForSale(ctx, SaleConsumptionInput{
		WarehouseID: 1,
		RefID:       "ord-2",
		Lines:       []ConsumptionLine{{ItemID: 10, Qty: 3}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, cogs.events)
}
