package catalog

import (
	"errors"
	"time"
)

// RecipeIngredient is a BOM edge from a sellable item or modifier option to
// a raw inventory item. Quantity is consumed per unit sold.
type RecipeIngredient struct {
	InventoryItemID int64
	Quantity        float64
	Unit            string
}

// ModifierOption is a selectable option within a modifier group. An option
// may carry its own recipe, consumed in addition to the base recipe.
type ModifierOption struct {
	Name       string
	PriceDelta float64
	Recipe     []RecipeIngredient
}

// ModifierGroup groups mutually related options under a named choice.
type ModifierGroup struct {
	Name    string
	Options []ModifierOption
}

// MenuItem is a sellable catalog entry.
type MenuItem struct {
	ID             int64
	Name           string
	Category       string
	Price          float64
	Available      bool
	Recipe         []RecipeIngredient
	ModifierGroups []ModifierGroup
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Selection references a chosen modifier option by group and option name.
type Selection struct {
	Group  string
	Option string
}

// Consumption is a raw-material requirement produced by recipe expansion.
type Consumption struct {
	InventoryItemID int64
	Quantity        float64
	Unit            string
}

var (
	// ErrItemNotFound indicates a missing catalog item.
	ErrItemNotFound = errors.New("catalog: item not found")
	// ErrInvalidPrice indicates a non-positive price.
	ErrInvalidPrice = errors.New("catalog: price must be positive")
	// ErrUnknownSelection indicates a selection that matches no modifier group or option.
	ErrUnknownSelection = errors.New("catalog: unknown modifier selection")
)
