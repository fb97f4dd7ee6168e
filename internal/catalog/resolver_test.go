package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func latteItem() MenuItem {
	return MenuItem{
		ID:    1,
		Name:  "Latte",
		Price: 100,
		Recipe: []RecipeIngredient{
			{InventoryItemID: 10, Quantity: 0.02, Unit: "kg"}, // beans
			{InventoryItemID: 11, Quantity: 0.2, Unit: "l"},   // milk
		},
		ModifierGroups: []ModifierGroup{
			{
				Name: "Milk",
				Options: []ModifierOption{
					{Name: "Oat", PriceDelta: 15, Recipe: []RecipeIngredient{{InventoryItemID: 12, Quantity: 0.2, Unit: "l"}}},
					{Name: "Whole", PriceDelta: 0},
				},
			},
			{
				Name: "Extras",
				Options: []ModifierOption{
					{Name: "ExtraShot", PriceDelta: 20, Recipe: []RecipeIngredient{{InventoryItemID: 10, Quantity: 0.01, Unit: "kg"}}},
				},
			},
		},
	}
}

func TestExpandScalesByQuantity(t *testing.T) {
	got, err := Expand(latteItem(), 3, nil)
	require.NoError(t, err)
	require.Equal(t, []Consumption{
		{InventoryItemID: 10, Quantity: 0.06, Unit: "kg"},
		{InventoryItemID: 11, Quantity: 0.6, Unit: "l"},
	}, got)
}

func TestExpandConcatenatesModifierRecipes(t *testing.T) {
	got, err := Expand(latteItem(), 2, []Selection{{Group: "Extras", Option: "ExtraShot"}})
	require.NoError(t, err)
	// Beans appear twice: once from the base recipe, once from the modifier.
	require.Equal(t, []Consumption{
		{InventoryItemID: 10, Quantity: 0.04, Unit: "kg"},
		{InventoryItemID: 11, Quantity: 0.4, Unit: "l"},
		{InventoryItemID: 10, Quantity: 0.02, Unit: "kg"},
	}, got)
}

func TestExpandSelectionOrderIndependent(t *testing.T) {
	a, err := Expand(latteItem(), 1, []Selection{
		{Group: "Milk", Option: "Oat"},
		{Group: "Extras", Option: "ExtraShot"},
	})
	require.NoError(t, err)
	b, err := Expand(latteItem(), 1, []Selection{
		{Group: "Extras", Option: "ExtraShot"},
		{Group: "Milk", Option: "Oat"},
	})
	require.NoError(t, err)
	require.Equal(t, a, b)

	// Idempotent: a second expansion of the same line is identical.
	c, err := Expand(latteItem(), 1, []Selection{
		{Group: "Milk", Option: "Oat"},
		{Group: "Extras", Option: "ExtraShot"},
	})
	require.NoError(t, err)
	require.Equal(t, a, c)
}

func TestExpandRejectsUnknownSelection(t *testing.T) {
	_, err := Expand(latteItem(), 1, []Selection{{Group: "Milk", Option: "Soy"}})
	require.ErrorIs(t, err, ErrUnknownSelection)

	_, err = Expand(latteItem(), 1, []Selection{{Group: "Size", Option: "Large"}})
	require.ErrorIs(t, err, ErrUnknownSelection)
}

func TestExpandRejectsNonPositiveQuantity(t *testing.T) {
	_, err := Expand(latteItem(), 0, nil)
	require.Error(t, err)
}

func TestLinePriceIncludesModifierDeltas(t *testing.T) {
	price, err := LinePrice(latteItem(), []Selection{
		{Group: "Milk", Option: "Oat"},
		{Group: "Extras", Option: "ExtraShot"},
	})
	require.NoError(t, err)
	require.InDelta(t, 135, price, 0.001)
}
