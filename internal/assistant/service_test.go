package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/auth"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/customers"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/ledger"
	"github.com/savor-erp/savor-erp/internal/orders"
	"github.com/savor-erp/savor-erp/internal/rbac"
	"github.com/savor-erp/savor-erp/internal/shared"
)

type fakeCatalog struct {
	items   map[int64]catalog.MenuItem
	updates []catalog.MenuItem
}

func (f *fakeCatalog) GetItem(_ context.Context, id int64) (catalog.MenuItem, error) {
	item, ok := f.items[id]
	if !ok {
		return catalog.MenuItem{}, catalog.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeCatalog) ListItems(_ context.Context) ([]catalog.MenuItem, error) {
	out := make([]catalog.MenuItem, 0, len(f.items))
	for _, item := range f.items {
		out = append(out, item)
	}
	return out, nil
}

func (f *fakeCatalog) CreateItem(_ context.Context, item catalog.MenuItem, _ string) (catalog.MenuItem, error) {
	item.ID = int64(len(f.items) + 100)
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeCatalog) UpdateItem(_ context.Context, item catalog.MenuItem, _ string) (catalog.MenuItem, error) {
	f.items[item.ID] = item
	f.updates = append(f.updates, item)
	return item, nil
}

type fakeInventory struct {
	items     map[int64]inventory.Item
	qty       map[int64]map[int64]float64
	movements []inventory.MovementInput
}

func (f *fakeInventory) GetItem(_ context.Context, id int64) (inventory.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeInventory) Balances(_ context.Context, itemID int64) ([]inventory.Balance, error) {
	var out []inventory.Balance
	for wh, qty := range f.qty[itemID] {
		out = append(out, inventory.Balance{ItemID: itemID, WarehouseID: wh, Qty: qty})
	}
	return out, nil
}

func (f *fakeInventory) ApplyMovement(_ context.Context, input inventory.MovementInput) (inventory.Movement, error) {
	f.movements = append(f.movements, input)
	f.qty[input.ItemID][input.WarehouseID] += input.Delta
	return inventory.Movement{ItemID: input.ItemID, Delta: input.Delta}, nil
}

func (f *fakeInventory) LowStock(_ context.Context) ([]inventory.LowStockRow, error) {
	return nil, nil
}

type fakeCustomers struct{ created []customers.Customer }

func (f *fakeCustomers) Create(_ context.Context, c customers.Customer) (customers.Customer, error) {
	c.ID = int64(len(f.created) + 1)
	f.created = append(f.created, c)
	return c, nil
}

func (f *fakeCustomers) List(context.Context, string, int) ([]customers.Customer, error) {
	return nil, nil
}

type fakeUsers struct{ created []auth.CreateUserInput }

func (f *fakeUsers) CreateUser(_ context.Context, input auth.CreateUserInput) (auth.User, error) {
	f.created = append(f.created, input)
	return auth.User{ID: 9, Username: input.Username}, nil
}

func (f *fakeUsers) Users(context.Context) ([]auth.User, error) { return nil, nil }

type fakeLedger struct{}

func (fakeLedger) TrialBalance(context.Context) (ledger.TrialBalance, error) {
	return ledger.TrialBalance{}, nil
}

type fakeOrders struct{}

func (fakeOrders) SalesSummary(_ context.Context, from, to time.Time) (orders.SalesSummary, error) {
	return orders.SalesSummary{From: from, To: to, Orders: 3, Revenue: 99}, nil
}

type fakeRBAC struct{ granted map[rbac.Permission]bool }

func (f *fakeRBAC) HasAll(_ context.Context, _ string, required ...rbac.Permission) (bool, error) {
	for _, p := range required {
		if !f.granted[p] {
			return false, nil
		}
	}
	return true, nil
}

type recordingAudit struct{ events []audit.EventType }

func (r *recordingAudit) Record(_ context.Context, event audit.EventType, _ audit.Payload, _ map[string]any) (audit.Record, error) {
	r.events = append(r.events, event)
	return audit.Record{}, nil
}

type executorFixture struct {
	svc       *Service
	catalog   *fakeCatalog
	inventory *fakeInventory
	rbac      *fakeRBAC
	audit     *recordingAudit
}

func newExecutorFixture() *executorFixture {
	f := &executorFixture{
		catalog: &fakeCatalog{items: map[int64]catalog.MenuItem{
			10: {ID: 10, Name: "Latte", Price: 12, Available: true},
		}},
		inventory: &fakeInventory{
			items: map[int64]inventory.Item{1: {ID: 1, Name: "Flour"}},
			qty:   map[int64]map[int64]float64{1: {1: 3}},
		},
		rbac:  &fakeRBAC{granted: map[rbac.Permission]bool{}},
		audit: &recordingAudit{},
	}
	f.svc = NewService(
		f.catalog, f.inventory, &fakeCustomers{}, &fakeUsers{},
		fakeLedger{}, fakeOrders{}, f.rbac, f.audit, nil,
	)
	return f
}

func execCtx() context.Context {
	return shared.ContextWithActor(context.Background(), &shared.Actor{
		UserID: 5, Role: "manager", BranchID: 1,
	})
}

func TestExecuteAppliesGuardedPriceChange(t *testing.T) {
	f := newExecutorFixture()
	f.rbac.granted[rbac.PermOpPriceChange] = true

	result, err := f.svc.Execute(execCtx(), Action{
		Kind:        KindChangePrice,
		ChangePrice: &ChangePriceAction{ItemID: 10, NewPrice: 14, Reason: "supplier cost"},
	})
	require.NoError(t, err)
	require.True(t, result.Decision.CanExecute)
	require.Len(t, f.catalog.updates, 1)
	require.InDelta(t, 14.0, f.catalog.updates[0].Price, 1e-9)
	require.Equal(t, []audit.EventType{audit.EventAssistantExecution}, f.audit.events)
}

func TestExecuteDeniedWithoutPermission(t *testing.T) {
	f := newExecutorFixture()

	_, err := f.svc.Execute(execCtx(), Action{
		Kind:        KindChangePrice,
		ChangePrice: &ChangePriceAction{ItemID: 10, NewPrice: 14},
	})
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Empty(t, f.catalog.updates)
	require.Empty(t, f.audit.events)
}

func TestExecuteBlockedByGuard(t *testing.T) {
	f := newExecutorFixture()
	f.rbac.granted[rbac.PermOpPriceChange] = true

	result, err := f.svc.Execute(execCtx(), Action{
		Kind:        KindChangePrice,
		ChangePrice: &ChangePriceAction{ItemID: 99, NewPrice: 14},
	})
	require.ErrorIs(t, err, ErrActionBlocked)
	require.False(t, result.Decision.CanExecute)
	require.Empty(t, f.catalog.updates)
}

func TestExecuteInventoryAdjustmentFromSnapshotDelta(t *testing.T) {
	f := newExecutorFixture()
	f.rbac.granted[rbac.PermOpStockAdjust] = true

	_, err := f.svc.Execute(execCtx(), Action{
		Kind: KindUpdateInventory,
		UpdateInventory: &UpdateInventoryAction{
			ItemID: 1, WarehouseID: 1, NewQty: 10, Reason: "stocktake",
		},
	})
	require.NoError(t, err)
	require.Len(t, f.inventory.movements, 1)
	require.InDelta(t, 7.0, f.inventory.movements[0].Delta, 1e-9)
	require.Equal(t, inventory.MovementAdjustment, f.inventory.movements[0].Kind)
	require.InDelta(t, 10.0, f.inventory.qty[1][1], 1e-9)
}

func TestExecuteRequiresActor(t *testing.T) {
	f := newExecutorFixture()
	_, err := f.svc.Execute(context.Background(), Action{
		Kind:        KindChangePrice,
		ChangePrice: &ChangePriceAction{ItemID: 10, NewPrice: 14},
	})
	require.ErrorIs(t, err, audit.ErrNoActor)
}
