// Package rbac owns the closed permission set and role resolution.
package rbac

// Permission is one grant in the closed permission set. Navigation grants
// gate UI surfaces, DATA_VIEW grants gate reads, OP grants gate mutations
// and CFG grants gate configuration changes.
type Permission string

const (
	PermNavPOS       Permission = "NAV_POS"
	PermNavInventory Permission = "NAV_INVENTORY"
	PermNavFinance   Permission = "NAV_FINANCE"
	PermNavAudit     Permission = "NAV_AUDIT"

	PermDataViewSales     Permission = "DATA_VIEW_SALES"
	PermDataViewInventory Permission = "DATA_VIEW_INVENTORY"
	PermDataViewLedger    Permission = "DATA_VIEW_LEDGER"
	PermDataViewAudit     Permission = "DATA_VIEW_AUDIT"

	PermOpOrderCreate    Permission = "OP_ORDER_CREATE"
	PermOpOrderStatus    Permission = "OP_ORDER_STATUS"
	PermOpStockAdjust    Permission = "OP_STOCK_ADJUST"
	PermOpStockTransfer  Permission = "OP_STOCK_TRANSFER"
	PermOpPriceChange    Permission = "OP_PRICE_CHANGE"
	PermOpCustomerCreate Permission = "OP_CUSTOMER_CREATE"
	PermOpPeriodClose    Permission = "OP_PERIOD_CLOSE"
	PermOpSyncReplay     Permission = "OP_SYNC_REPLAY"

	PermCfgMenuEdit   Permission = "CFG_MENU_EDIT"
	PermCfgUserManage Permission = "CFG_USER_MANAGE"
)

var all = []Permission{
	PermNavPOS, PermNavInventory, PermNavFinance, PermNavAudit,
	PermDataViewSales, PermDataViewInventory, PermDataViewLedger, PermDataViewAudit,
	PermOpOrderCreate, PermOpOrderStatus, PermOpStockAdjust, PermOpStockTransfer,
	PermOpPriceChange, PermOpCustomerCreate, PermOpPeriodClose, PermOpSyncReplay,
	PermCfgMenuEdit, PermCfgUserManage,
}

// All returns every known permission.
func All() []Permission {
	out := make([]Permission, len(all))
	copy(out, all)
	return out
}

// Valid reports whether p belongs to the closed set.
func Valid(p Permission) bool {
	for _, known := range all {
		if known == p {
			return true
		}
	}
	return false
}
