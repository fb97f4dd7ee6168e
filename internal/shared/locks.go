package shared

import "fmt"

// StockLockKey builds redis keys for per-(item, warehouse) critical sections.
func StockLockKey(itemID, warehouseID int64) string {
	return fmt.Sprintf("stock:%d:%d:lock", itemID, warehouseID)
}

// LedgerLockKey builds redis keys for posting critical sections per branch.
func LedgerLockKey(branchID int64) string {
	return fmt.Sprintf("ledger:branch:%d:lock", branchID)
}
