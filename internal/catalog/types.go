// Package catalog defines the master-data entities managed by the external
// persistence service (Items and Bills of Material) and an HTTP client for
// its CRUD API. The import engine in internal/importer builds candidates of
// these types; the web layer proxies single-record operations through the
// client.
package catalog

import "strings"

// SystemUser is the actor recorded on rows created by bulk import.
const SystemUser = "system_user"

// ItemType determines an item's role eligibility in a BOM:
// sell and component items may be parents, purchase and component items
// may be consumed as components.
type ItemType string

const (
	TypeSell      ItemType = "sell"
	TypePurchase  ItemType = "purchase"
	TypeComponent ItemType = "component"
)

// ItemTypes lists all valid item types in display order.
var ItemTypes = []ItemType{TypeSell, TypePurchase, TypeComponent}

// UOM is an item's unit of measure.
type UOM string

const (
	UOMKgs UOM = "Kgs"
	UOMNos UOM = "Nos"
)

// ScrapType tags sell items with their scrap classification.
type ScrapType string

const (
	ScrapA ScrapType = "scrap_a"
	ScrapB ScrapType = "scrap_b"
)

// ScrapTypes lists all valid scrap types.
var ScrapTypes = []ScrapType{ScrapA, ScrapB}

// AdditionalAttributes is the nested attribute record on an Item.
// ScrapType is only meaningful (and required) when the item type is sell.
type AdditionalAttributes struct {
	AvgWeightNeeded bool   `json:"avg_weight_needed"`
	ScrapType       string `json:"scrap_type,omitempty"`
}

// Item is a master-data record for something sellable, purchasable, or
// usable as a sub-component. The id is assigned by the persistence service;
// a nil ID marks a not-yet-created row. Items are soft-deleted via
// IsDeleted rather than removed.
type Item struct {
	ID                   *int                 `json:"id,omitempty"`
	InternalItemName     string               `json:"internal_item_name"`
	TenantID             int                  `json:"tenant_id"`
	ItemDescription      string               `json:"item_description"`
	UOM                  UOM                  `json:"uom"`
	CreatedBy            string               `json:"created_by"`
	LastUpdatedBy        string               `json:"last_updated_by"`
	Type                 ItemType             `json:"type"`
	MaxBuffer            *int                 `json:"max_buffer"`
	MinBuffer            *int                 `json:"min_buffer"`
	CustomerItemName     string               `json:"customer_item_name,omitempty"`
	IsDeleted            bool                 `json:"is_deleted"`
	CreatedAt            string               `json:"createdAt,omitempty"`
	UpdatedAt            string               `json:"updatedAt,omitempty"`
	AdditionalAttributes AdditionalAttributes `json:"additional_attributes"`
}

// BOM links a parent item to a component item with a per-unit quantity.
type BOM struct {
	ID            *int   `json:"id,omitempty"`
	ItemID        int    `json:"item_id"`
	ComponentID   int    `json:"component_id"`
	Quantity      int    `json:"quantity"`
	CreatedBy     string `json:"created_by"`
	LastUpdatedBy string `json:"last_updated_by"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CanonicalItemType normalizes a raw type value to its canonical form.
// Matching is case-insensitive; ok is false for unknown values.
func CanonicalItemType(s string) (ItemType, bool) {
	norm := normalize(s)
	for _, t := range ItemTypes {
		if norm == string(t) {
			return t, true
		}
	}
	return "", false
}

// ValidScrapType reports whether s is a known scrap classification.
func ValidScrapType(s string) bool {
	for _, st := range ScrapTypes {
		if s == string(st) {
			return true
		}
	}
	return false
}

// CanonicalUOM normalizes a raw unit-of-measure value to canonical casing.
// Matching is case-insensitive; ok is false for unknown values.
func CanonicalUOM(s string) (UOM, bool) {
	switch normalize(s) {
	case "kgs":
		return UOMKgs, true
	case "nos":
		return UOMNos, true
	}
	return "", false
}
