package catalog

import "fmt"

// Expand flattens a sold line into raw-material consumption requirements.
//
// The base recipe is concatenated with the recipe of every selected modifier
// option; a material appearing in both contributes two separate lines, each
// scaled independently by the sold quantity. Expansion is single level: a
// modifier's own composite sub-ingredients are not walked.
//
// Modifier recipes are appended in the item's group definition order, not in
// selection order, so the result is identical for any permutation of the
// same selections.
func Expand(item MenuItem, quantity float64, selections []Selection) ([]Consumption, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("catalog: quantity must be positive, got %v", quantity)
	}
	selected := make(map[string]string, len(selections))
	for _, sel := range selections {
		selected[sel.Group] = sel.Option
	}

	out := make([]Consumption, 0, len(item.Recipe))
	for _, ing := range item.Recipe {
		out = append(out, Consumption{
			InventoryItemID: ing.InventoryItemID,
			Quantity:        ing.Quantity * quantity,
			Unit:            ing.Unit,
		})
	}

	matched := 0
	for _, group := range item.ModifierGroups {
		optionName, ok := selected[group.Name]
		if !ok {
			continue
		}
		option, found := findOption(group, optionName)
		if !found {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownSelection, group.Name, optionName)
		}
		matched++
		for _, ing := range option.Recipe {
			out = append(out, Consumption{
				InventoryItemID: ing.InventoryItemID,
				Quantity:        ing.Quantity * quantity,
				Unit:            ing.Unit,
			})
		}
	}
	if matched != len(selected) {
		return nil, fmt.Errorf("%w: selection references undefined group", ErrUnknownSelection)
	}
	return out, nil
}

// LinePrice computes the unit price of a sold line including modifier deltas.
func LinePrice(item MenuItem, selections []Selection) (float64, error) {
	selected := make(map[string]string, len(selections))
	for _, sel := range selections {
		selected[sel.Group] = sel.Option
	}
	price := item.Price
	matched := 0
	for _, group := range item.ModifierGroups {
		optionName, ok := selected[group.Name]
		if !ok {
			continue
		}
		option, found := findOption(group, optionName)
		if !found {
			return 0, fmt.Errorf("%w: %s/%s", ErrUnknownSelection, group.Name, optionName)
		}
		matched++
		price += option.PriceDelta
	}
	if matched != len(selected) {
		return 0, fmt.Errorf("%w: selection references undefined group", ErrUnknownSelection)
	}
	return price, nil
}

func findOption(group ModifierGroup, name string) (ModifierOption, bool) {
	for _, option := range group.Options {
		if option.Name == name {
			return option, true
		}
	}
	return ModifierOption{}, false
}
