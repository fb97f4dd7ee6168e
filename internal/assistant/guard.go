package assistant

import (
	"encoding/json"
	"fmt"

	"github.com/savor-erp/savor-erp/internal/audit"
	"github.com/savor-erp/savor-erp/internal/catalog"
	"github.com/savor-erp/savor-erp/internal/inventory"
	"github.com/savor-erp/savor-erp/internal/rbac"
)

// Snapshot is the entity state a guard decision is made against. It is a
// plain value: Guard never mutates it, so the same snapshot can back any
// number of previews.
type Snapshot struct {
	InventoryItems map[int64]inventory.Item
	StockQty       map[int64]map[int64]float64 // item -> warehouse -> qty
	MenuItems      map[int64]catalog.MenuItem
	Usernames      map[string]bool
	CustomerPhones map[string]bool
}

// Decision is the preview for one proposed action. Before and After hold the
// diff the execution would apply; Permission and AuditEvent tell the caller
// what executing requires and what must be recorded.
type Decision struct {
	CanExecute bool            `json:"canExecute"`
	Reason     string          `json:"reason,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Permission rbac.Permission `json:"permission"`
	AuditEvent audit.EventType `json:"auditEvent"`
}

// Guard previews an action against a snapshot. It is a pure function: no
// side effects, deterministic for identical inputs.
func Guard(action Action, snap Snapshot) Decision {
	if err := action.Validate(); err != nil {
		return Decision{Reason: err.Error()}
	}
	switch action.Kind {
	case KindUpdateInventory:
		return guardUpdateInventory(*action.UpdateInventory, snap)
	case KindCreateMenuItem:
		return guardCreateMenuItem(*action.CreateMenuItem, snap)
	case KindUpdateMenuItem:
		return guardUpdateMenuItem(*action.UpdateMenuItem, snap)
	case KindChangePrice:
		return guardChangePrice(*action.ChangePrice, snap)
	case KindCreateCustomer:
		return guardCreateCustomer(*action.CreateCustomer, snap)
	case KindCreateUser:
		return guardCreateUser(*action.CreateUser, snap)
	case KindRunReport:
		return guardRunReport(*action.RunReport)
	default:
		return Decision{Reason: fmt.Sprintf("unknown action kind %q", action.Kind)}
	}
}

func guardUpdateInventory(a UpdateInventoryAction, snap Snapshot) Decision {
	d := Decision{
		Permission: rbac.PermOpStockAdjust,
		AuditEvent: audit.EventInventoryAdjustment,
	}
	item, ok := snap.InventoryItems[a.ItemID]
	if !ok {
		d.Reason = "Item not found"
		return d
	}
	if a.NewQty < 0 {
		d.Reason = "quantity cannot be negative"
		return d
	}
	current := snap.StockQty[a.ItemID][a.WarehouseID]
	d.CanExecute = true
	d.Before = marshal(map[string]any{"item": item.Name, "qty": current})
	d.After = marshal(map[string]any{"item": item.Name, "qty": a.NewQty})
	return d
}

func guardCreateMenuItem(a CreateMenuItemAction, snap Snapshot) Decision {
	d := Decision{
		Permission: rbac.PermCfgMenuEdit,
		AuditEvent: audit.EventMenuItemCreate,
	}
	if a.Name == "" {
		d.Reason = "name required"
		return d
	}
	if a.Price <= 0 {
		d.Reason = "price must be positive"
		return d
	}
	for _, item := range snap.MenuItems {
		if item.Name == a.Name {
			d.Reason = fmt.Sprintf("menu item %q already exists", a.Name)
			return d
		}
	}
	d.CanExecute = true
	d.After = marshal(a)
	return d
}

func guardUpdateMenuItem(a UpdateMenuItemAction, snap Snapshot) Decision {
	d := Decision{
		Permission: rbac.PermCfgMenuEdit,
		AuditEvent: audit.EventMenuItemUpdate,
	}
	item, ok := snap.MenuItems[a.ItemID]
	if !ok {
		d.Reason = "Item not found"
		return d
	}
	after := item
	if a.Name != "" {
		after.Name = a.Name
	}
	if a.Category != "" {
		after.Category = a.Category
	}
	if a.Available != nil {
		after.Available = *a.Available
	}
	d.CanExecute = true
	d.Before = marshal(map[string]any{"name": item.Name, "category": item.Category, "available": item.Available})
	d.After = marshal(map[string]any{"name": after.Name, "category": after.Category, "available": after.Available})
	return d
}

func guardChangePrice(a ChangePriceAction, snap Snapshot) Decision {
	d := Decision{
		Permission: rbac.PermOpPriceChange,
		AuditEvent: audit.EventPriceChange,
	}
	item, ok := snap.MenuItems[a.ItemID]
	if !ok {
		d.Reason = "Item not found"
		return d
	}
	if a.NewPrice <= 0 {
		d.Reason = "price must be positive"
		return d
	}
	d.CanExecute = true
	d.Before = marshal(map[string]any{"item": item.Name, "price": item.Price})
	d.After = marshal(map[string]any{"item": item.Name, "price": a.NewPrice})
	return d
}

func guardCreateCustomer(a CreateCustomerAction, snap Snapshot) Decision {
	d := Decision{
		Permission: rbac.PermOpCustomerCreate,
		AuditEvent: audit.EventCustomerCreate,
	}
	if a.Name == "" {
		d.Reason = "name required"
		return d
	}
	if a.Phone != "" && snap.CustomerPhones[a.Phone] {
		d.Reason = fmt.Sprintf("phone %s already registered", a.Phone)
		return d
	}
	d.CanExecute = true
	d.After = marshal(a)
	return d
}

func guardCreateUser(a CreateUserAction, snap Snapshot) Decision {
	d := Decision{
		Permission: rbac.PermCfgUserManage,
		AuditEvent: audit.EventUserCreate,
	}
	if a.Username == "" || a.Role == "" {
		d.Reason = "username and role required"
		return d
	}
	if snap.Usernames[a.Username] {
		d.Reason = fmt.Sprintf("username %q already taken", a.Username)
		return d
	}
	d.CanExecute = true
	d.After = marshal(a)
	return d
}

func guardRunReport(a RunReportAction) Decision {
	d := Decision{AuditEvent: audit.EventAssistantExecution}
	switch a.Report {
	case ReportSales:
		d.Permission = rbac.PermDataViewSales
	case ReportLowStock:
		d.Permission = rbac.PermDataViewInventory
	case ReportTrialBalance:
		d.Permission = rbac.PermDataViewLedger
	default:
		d.Reason = fmt.Sprintf("unknown report %q", a.Report)
		return d
	}
	d.CanExecute = true
	return d
}

func marshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
