package assistant

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/rbac"
)

func guardSnapshot() Snapshot {
	return Snapshot{
		InventoryItems: map[int64]inventory.Item{
			1: {ID: 1, SKU: "FLOUR", Name: "Flour", Unit: "kg"},
		},
		StockQty: map[int64]map[int64]float64{
			1: {1: 12.5},
		},
		MenuItems: map[int64]catalog.MenuItem{
			10: {ID: 10, Name: "Latte", Category: "Drinks", Price: 12, Available: true},
		},
		Usernames:      map[string]bool{"alex": true},
		CustomerPhones: map[string]bool{"555-0100": true},
	}
}

func TestGuardUpdateInventoryDiff(t *testing.T) {
	action := Action{Kind: KindUpdateInventory, UpdateInventory: &UpdateInventoryAction{
		ItemID: 1, WarehouseID: 1, NewQty: 10, Reason: "stocktake",
	}}
	d := Guard(action, guardSnapshot())
	require.True(t, d.CanExecute)
	require.Equal(t, rbac.PermOpStockAdjust, d.Permission)
	require.Equal(t, audit.EventInventoryAdjustment, d.AuditEvent)
	require.JSONEq(t, `{"item":"Flour","qty":12.5}`, string(d.Before))
	require.JSONEq(t, `{"item":"Flour","qty":10}`, string(d.After))
}

func TestGuardReportsMissingTarget(t *testing.T) {
	snap := guardSnapshot()

	d := Guard(Action{Kind: KindUpdateInventory, UpdateInventory: &UpdateInventoryAction{
		ItemID: 99, WarehouseID: 1, NewQty: 5,
	}}, snap)
	require.False(t, d.CanExecute)
	require.Equal(t, "Item not found", d.Reason)

	d = Guard(Action{Kind: KindChangePrice, ChangePrice: &ChangePriceAction{
		ItemID: 99, NewPrice: 15,
	}}, snap)
	require.False(t, d.CanExecute)
	require.Equal(t, "Item not found", d.Reason)
}

func TestGuardIsPureAndDeterministic(t *testing.T) {
	snap := guardSnapshot()
	action := Action{Kind: KindChangePrice, ChangePrice: &ChangePriceAction{ItemID: 10, NewPrice: 14}}

	first := Guard(action, snap)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Guard(action, snap))
	}
	// The snapshot the decisions were made against is untouched.
	require.InDelta(t, 12.0, snap.MenuItems[10].Price, 1e-9)
	require.InDelta(t, 12.5, snap.StockQty[1][1], 1e-9)
}

func TestGuardRejectsDuplicates(t *testing.T) {
	snap := guardSnapshot()

	d := Guard(Action{Kind: KindCreateUser, CreateUser: &CreateUserAction{
		Username: "alex", Name: "Alex", Role: "cashier",
	}}, snap)
	require.False(t, d.CanExecute)
	require.Equal(t, rbac.PermCfgUserManage, d.Permission)

	d = Guard(Action{Kind: KindCreateCustomer, CreateCustomer: &CreateCustomerAction{
		Name: "Sam", Phone: "555-0100",
	}}, snap)
	require.False(t, d.CanExecute)

	d = Guard(Action{Kind: KindCreateMenuItem, CreateMenuItem: &CreateMenuItemAction{
		Name: "Latte", Price: 10,
	}}, snap)
	require.False(t, d.CanExecute)
}

func TestGuardReportPermissions(t *testing.T) {
	cases := map[string]rbac.Permission{
		ReportSales:        rbac.PermDataViewSales,
		ReportLowStock:     rbac.PermDataViewInventory,
		ReportTrialBalance: rbac.PermDataViewLedger,
	}
	for report, perm := range cases {
		d := Guard(Action{Kind: KindRunReport, RunReport: &RunReportAction{Report: report}}, Snapshot{})
		require.True(t, d.CanExecute, report)
		require.Equal(t, perm, d.Permission, report)
	}
	d := Guard(Action{Kind: KindRunReport, RunReport: &RunReportAction{Report: "made_up"}}, Snapshot{})
	require.False(t, d.CanExecute)
}

func TestActionValidateEnforcesUnion(t *testing.T) {
	require.Error(t, Action{Kind: KindChangePrice}.Validate())
	require.Error(t, Action{Kind: "UNKNOWN"}.Validate())
	require.Error(t, Action{
		Kind:        KindChangePrice,
		ChangePrice: &ChangePriceAction{ItemID: 1, NewPrice: 2},
		RunReport:   &RunReportAction{Report: ReportSales},
	}.Validate())
	require.NoError(t, Action{
		Kind:        KindChangePrice,
		ChangePrice: &ChangePriceAction{ItemID: 1, NewPrice: 2},
	}.Validate())
}
