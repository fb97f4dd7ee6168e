// Package assistant guards and executes mutations proposed by the AI agent.
package assistant

import (
	"errors"
	"fmt"

	"github.com/savor-erp/savor-erp/internal/catalog"
)

// Kind discriminates the closed set of actions the assistant may propose.
type Kind string

const (
	KindUpdateInventory Kind = "UPDATE_INVENTORY"
	KindCreateMenuItem  Kind = "CREATE_MENU_ITEM"
	KindUpdateMenuItem  Kind = "UPDATE_MENU_ITEM"
	KindChangePrice     Kind = "CHANGE_PRICE"
	KindCreateCustomer  Kind = "CREATE_CUSTOMER"
	KindCreateUser      Kind = "CREATE_USER"
	KindRunReport       Kind = "RUN_REPORT"
)

// UpdateInventoryAction sets an item's quantity in one warehouse. The
// executor turns the difference into an adjustment movement.
type UpdateInventoryAction struct {
	ItemID      int64   `json:"itemId"`
	WarehouseID int64   `json:"warehouseId"`
	NewQty      float64 `json:"newQty"`
	Reason      string  `json:"reason"`
}

// CreateMenuItemAction adds a catalog entry.
type CreateMenuItemAction struct {
	Name     string                     `json:"name"`
	Category string                     `json:"category"`
	Price    float64                    `json:"price"`
	Recipe   []catalog.RecipeIngredient `json:"recipe,omitempty"`
}

// UpdateMenuItemAction renames or re-categorises an existing entry.
type UpdateMenuItemAction struct {
	ItemID    int64  `json:"itemId"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	Available *bool  `json:"available,omitempty"`
}

// ChangePriceAction moves an item to a new price.
type ChangePriceAction struct {
	ItemID   int64   `json:"itemId"`
	NewPrice float64 `json:"newPrice"`
	Reason   string  `json:"reason"`
}

// CreateCustomerAction registers a customer.
type CreateCustomerAction struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// CreateUserAction registers an operator account. The executor generates the
// initial credential; the assistant never handles passwords.
type CreateUserAction struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// RunReportAction requests a read-only report.
type RunReportAction struct {
	Report string `json:"report"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

// Reports the assistant may run.
const (
	ReportSales        = "sales"
	ReportLowStock     = "low_stock"
	ReportTrialBalance = "trial_balance"
)

// Action is a tagged union: Kind selects exactly one populated variant.
type Action struct {
	Kind Kind `json:"kind"`

	UpdateInventory *UpdateInventoryAction `json:"updateInventory,omitempty"`
	CreateMenuItem  *CreateMenuItemAction  `json:"createMenuItem,omitempty"`
	UpdateMenuItem  *UpdateMenuItemAction  `json:"updateMenuItem,omitempty"`
	ChangePrice     *ChangePriceAction     `json:"changePrice,omitempty"`
	CreateCustomer  *CreateCustomerAction  `json:"createCustomer,omitempty"`
	CreateUser      *CreateUserAction      `json:"createUser,omitempty"`
	RunReport       *RunReportAction       `json:"runReport,omitempty"`
}

// ErrMalformedAction indicates a union whose variant does not match its kind.
var ErrMalformedAction = errors.New("assistant: malformed action")

// Validate checks that exactly the variant named by Kind is populated.
func (a Action) Validate() error {
	variants := map[Kind]bool{
		KindUpdateInventory: a.UpdateInventory != nil,
		KindCreateMenuItem:  a.CreateMenuItem != nil,
		KindUpdateMenuItem:  a.UpdateMenuItem != nil,
		KindChangePrice:     a.ChangePrice != nil,
		KindCreateCustomer:  a.CreateCustomer != nil,
		KindCreateUser:      a.CreateUser != nil,
		KindRunReport:       a.RunReport != nil,
	}
	want, known := variants[a.Kind]
	if !known {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedAction, a.Kind)
	}
	if !want {
		return fmt.Errorf("%w: kind %s without its payload", ErrMalformedAction, a.Kind)
	}
	populated := 0
	for _, set := range variants {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("%w: %d variants populated", ErrMalformedAction, populated)
	}
	return nil
}
