package catalog

// forms.go validates single-record create/update requests coming from the
// interactive admin forms. These rules are deliberately stricter than the
// bulk-import rules in internal/importer: the form path enforces the [1,100]
// quantity bound and the item/component role cross-checks, the bulk path
// does not. Keep the two in sync on message wording, not on rule sets.

// FieldErrors maps a field name to its validation message, mirroring the
// per-field error display in the admin dialogs.
type FieldErrors map[string]string

// ValidateItemForm checks an item from the interactive form.
// Returns an empty map when the item is valid.
func ValidateItemForm(item Item) FieldErrors {
	errs := FieldErrors{}

	if item.InternalItemName == "" {
		errs["internal_item_name"] = "Item name is required"
	}
	if item.Type == "" {
		errs["type"] = "Item type is required"
	} else if _, ok := CanonicalItemType(string(item.Type)); !ok {
		errs["type"] = "Type must be sell, purchase, or component"
	}
	if item.UOM != "" {
		if _, ok := CanonicalUOM(string(item.UOM)); !ok {
			errs["uom"] = "UOM must be Kgs or Nos"
		}
	}

	if item.Type == TypeSell && item.AdditionalAttributes.ScrapType == "" {
		errs["scrap_type"] = "Scrap type is required for sell items"
	}
	if scrap := item.AdditionalAttributes.ScrapType; scrap != "" && !ValidScrapType(scrap) {
		errs["scrap_type"] = "Scrap type must be scrap_a or scrap_b"
	}

	if item.MinBuffer == nil || item.MaxBuffer == nil {
		errs["min_buffer"] = "Min buffer is required"
		errs["max_buffer"] = "Max buffer is required"
	}
	if item.MinBuffer != nil && *item.MinBuffer < 0 {
		errs["min_buffer"] = "Min buffer cannot be negative"
	}
	if item.MaxBuffer != nil && *item.MaxBuffer < 0 {
		errs["max_buffer"] = "Max buffer cannot be negative"
	}
	if item.MinBuffer != nil && item.MaxBuffer != nil && *item.MaxBuffer < *item.MinBuffer {
		errs["max_buffer"] = "Max buffer must be greater than or equal to min buffer"
	}

	return errs
}

// ValidateBOMForm checks a BOM from the interactive form against the known
// items. Unlike the bulk path, the form rejects quantities outside [1,100]
// and enforces role eligibility: a purchase item cannot be the parent and a
// sell item cannot be consumed as a component.
func ValidateBOMForm(bom BOM, items []Item) FieldErrors {
	errs := FieldErrors{}

	if bom.ItemID == 0 {
		errs["item_id"] = "Item is required"
	}
	if bom.ComponentID == 0 {
		errs["component_id"] = "Component is required"
	}
	if bom.Quantity < 1 || bom.Quantity > 100 {
		errs["quantity"] = "Quantity must be between 1 and 100"
	}

	parent := findItem(items, bom.ItemID)
	component := findItem(items, bom.ComponentID)
	if parent != nil && component != nil {
		if parent.Type == TypePurchase {
			errs["item_id"] = "Purchase item cannot be an item in BOM"
		}
		if component.Type == TypeSell {
			errs["component_id"] = "Sell item cannot be a component in BOM"
		}
	}

	return errs
}

func findItem(items []Item, id int) *Item {
	if id == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID != nil && *items[i].ID == id {
			return &items[i]
		}
	}
	return nil
}
