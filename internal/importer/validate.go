package importer

import (
	"strings"
	"time"

	"github.com/inveelabs/masterdata/internal/catalog"
)

// Kind selects which entity's rules a batch runs under.
type Kind string

const (
	KindItems Kind = "items"
	KindBOM   Kind = "bom"
)

// timeNow stamps audit timestamps on candidates; swapped out in tests for a
// fixed clock.
var timeNow = time.Now

// ParseKind maps a URL/path segment to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindItems:
		return KindItems, true
	case KindBOM:
		return KindBOM, true
	}
	return "", false
}

// ValidateItemRow applies the structural item rules to one raw record and
// returns either a normalized candidate or every failing rule's message.
// requireID is set for the delimited-text import flow, where the id column
// doubles as a correlation key; the workbook flow leaves it optional.
//
// Validation is a pure function of the record: it never consults other rows
// or the persistence service, and it does not short-circuit, so the user
// sees the full picture for a row in one pass.
func ValidateItemRow(rec Record, requireID bool) (catalog.Item, []string) {
	var errs []string

	name := strings.TrimSpace(rec.Get("internal_item_name").String())
	rawType := strings.ToLower(strings.TrimSpace(rec.Get("type").String()))
	rawUOM := strings.TrimSpace(rec.Get("uom").String())
	minVal := rec.Get("min_buffer")
	maxVal := rec.Get("max_buffer")
	scrap := strings.TrimSpace(rec.GetAny("additional_attributes__scrap_type", "scrap_type").String())

	if requireID && rec.Get("id").IsBlank() {
		errs = append(errs, "ID is required")
	}
	if name == "" {
		errs = append(errs, "Item name is required")
	}
	if rawType == "" {
		errs = append(errs, "Type is required")
	}
	if rawUOM == "" {
		errs = append(errs, "UOM is required")
	}
	if minVal.IsBlank() {
		errs = append(errs, "Min buffer is required")
	}
	if maxVal.IsBlank() {
		errs = append(errs, "Max buffer is required")
	}

	itemType, typeOK := catalog.CanonicalItemType(rawType)
	if rawType != "" && !typeOK {
		errs = append(errs, "Type must be sell, purchase, or component")
	}
	uom, uomOK := catalog.CanonicalUOM(rawUOM)
	if rawUOM != "" && !uomOK {
		errs = append(errs, "UOM must be Kgs or Nos")
	}

	minBuf, minOK := minVal.Number()
	maxBuf, maxOK := maxVal.Number()
	if !minOK {
		errs = append(errs, "Min buffer must be a number")
	}
	if !maxOK {
		errs = append(errs, "Max buffer must be a number")
	}
	if minOK && maxOK && maxBuf < minBuf {
		errs = append(errs, "Max buffer must be greater than or equal to min buffer")
	}

	if itemType == catalog.TypeSell && scrap == "" {
		errs = append(errs, "Scrap type is required for sell items")
	}

	if len(errs) > 0 {
		return catalog.Item{}, errs
	}

	now := timeNow().UTC().Format(time.RFC3339)
	minInt, maxInt := int(minBuf), int(maxBuf)
	tenant, _ := rec.Get("tenant_id").Number()

	item := catalog.Item{
		InternalItemName: name,
		TenantID:         int(tenant),
		ItemDescription:  strings.TrimSpace(rec.Get("item_description").String()),
		UOM:              uom,
		CreatedBy:        catalog.SystemUser,
		LastUpdatedBy:    catalog.SystemUser,
		Type:             itemType,
		MinBuffer:        &minInt,
		MaxBuffer:        &maxInt,
		CustomerItemName: strings.TrimSpace(rec.Get("customer_item_name").String()),
		IsDeleted:        false,
		CreatedAt:        now,
		UpdatedAt:        now,
		AdditionalAttributes: catalog.AdditionalAttributes{
			AvgWeightNeeded: rec.GetAny("additional_attributes__avg_weight_needed", "avg_weight_needed").Truthy(),
		},
	}
	if itemType == catalog.TypeSell {
		item.AdditionalAttributes.ScrapType = scrap
	}
	return item, nil
}

// ValidateBOMRow applies the structural BOM rules to one raw record.
// The bulk path only requires quantity > 0; the [1,100] bound and the
// item-role cross-checks belong to the interactive form
// (catalog.ValidateBOMForm) and are intentionally not applied here.
func ValidateBOMRow(rec Record) (catalog.BOM, []string) {
	var errs []string

	itemID, itemOK := rec.Get("item_id").Number()
	if !itemOK || itemID == 0 {
		errs = append(errs, "Item ID is required")
	}
	componentID, componentOK := rec.Get("component_id").Number()
	if !componentOK || componentID == 0 {
		errs = append(errs, "Component ID is required")
	}

	qtyVal := rec.Get("quantity")
	if qtyVal.IsBlank() {
		errs = append(errs, "Quantity is required")
	}
	qty, qtyOK := qtyVal.Number()
	if !qtyOK || qty <= 0 {
		errs = append(errs, "Quantity must be a positive number")
	}

	if len(errs) > 0 {
		return catalog.BOM{}, errs
	}

	createdBy := strings.TrimSpace(rec.Get("created_by").String())
	if createdBy == "" {
		createdBy = catalog.SystemUser
	}
	updatedBy := strings.TrimSpace(rec.Get("last_updated_by").String())
	if updatedBy == "" {
		updatedBy = catalog.SystemUser
	}

	return catalog.BOM{
		ItemID:        int(itemID),
		ComponentID:   int(componentID),
		Quantity:      int(qty),
		CreatedBy:     createdBy,
		LastUpdatedBy: updatedBy,
	}, nil
}
