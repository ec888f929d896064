package importer

import (
	"reflect"
	"testing"
	"time"

	"github.com/inveelabs/masterdata/internal/catalog"
)

func validItemRecord() Record {
	return Record{
		"id":                 NumberValue(1),
		"internal_item_name": StringValue("Widget"),
		"tenant_id":          NumberValue(7),
		"type":               StringValue("Sell"),
		"uom":                StringValue("kgs"),
		"min_buffer":         NumberValue(10),
		"max_buffer":         NumberValue(100),
		"additional_attributes__scrap_type":        StringValue("scrap_a"),
		"additional_attributes__avg_weight_needed": BoolValue(true),
	}
}

func TestValidateItemRow_Valid(t *testing.T) {
	item, errs := ValidateItemRow(validItemRecord(), false)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if item.InternalItemName != "Widget" {
		t.Errorf("InternalItemName = %q", item.InternalItemName)
	}
	if item.Type != catalog.TypeSell {
		t.Errorf("Type = %q, want sell (normalized)", item.Type)
	}
	if item.UOM != catalog.UOMKgs {
		t.Errorf("UOM = %q, want Kgs (canonicalized)", item.UOM)
	}
	if item.TenantID != 7 {
		t.Errorf("TenantID = %d, want 7", item.TenantID)
	}
	if item.MinBuffer == nil || *item.MinBuffer != 10 {
		t.Errorf("MinBuffer = %v, want 10", item.MinBuffer)
	}
	if item.MaxBuffer == nil || *item.MaxBuffer != 100 {
		t.Errorf("MaxBuffer = %v, want 100", item.MaxBuffer)
	}
	if item.CreatedBy != catalog.SystemUser || item.LastUpdatedBy != catalog.SystemUser {
		t.Errorf("audit fields = %q/%q, want system_user", item.CreatedBy, item.LastUpdatedBy)
	}
	if !item.AdditionalAttributes.AvgWeightNeeded {
		t.Error("AvgWeightNeeded should be true")
	}
	if item.AdditionalAttributes.ScrapType != "scrap_a" {
		t.Errorf("ScrapType = %q", item.AdditionalAttributes.ScrapType)
	}
}

func TestValidateItemRow_Idempotent(t *testing.T) {
	orig := timeNow
	timeNow = func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) }
	defer func() { timeNow = orig }()

	rec := validItemRecord()
	first, errs1 := ValidateItemRow(rec, false)
	second, errs2 := ValidateItemRow(rec, false)

	if len(errs1) != 0 || len(errs2) != 0 {
		t.Fatalf("unexpected errors: %v / %v", errs1, errs2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("validation not idempotent:\n%+v\n%+v", first, second)
	}
	if first.CreatedAt != "2024-02-01T12:00:00Z" || first.UpdatedAt != first.CreatedAt {
		t.Errorf("timestamps = %q / %q", first.CreatedAt, first.UpdatedAt)
	}
}

func TestValidateItemRow_AllErrorsAccumulate(t *testing.T) {
	_, errs := ValidateItemRow(Record{}, false)

	want := []string{
		"Item name is required",
		"Type is required",
		"UOM is required",
		"Min buffer is required",
		"Max buffer is required",
		"Min buffer must be a number",
		"Max buffer must be a number",
	}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateItemRow_IDRequiredOnlyWhenAsked(t *testing.T) {
	rec := validItemRecord()
	delete(rec, "id")

	if _, errs := ValidateItemRow(rec, false); len(errs) != 0 {
		t.Errorf("workbook path should not require id: %v", errs)
	}

	_, errs := ValidateItemRow(rec, true)
	if len(errs) != 1 || errs[0] != "ID is required" {
		t.Errorf("delimited path errors = %v, want [ID is required]", errs)
	}
}

func TestValidateItemRow_BlankBufferString(t *testing.T) {
	rec := validItemRecord()
	rec["min_buffer"] = StringValue("")

	// A present-but-empty cell is required, but coerces to 0 so it is not
	// additionally flagged as non-numeric.
	_, errs := ValidateItemRow(rec, false)
	want := []string{"Min buffer is required"}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateItemRow_AbsentBufferGetsBothErrors(t *testing.T) {
	rec := validItemRecord()
	delete(rec, "min_buffer")

	_, errs := ValidateItemRow(rec, false)
	want := []string{"Min buffer is required", "Min buffer must be a number"}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateItemRow_InvalidEnums(t *testing.T) {
	rec := validItemRecord()
	rec["type"] = StringValue("consumable")
	rec["uom"] = StringValue("liters")

	_, errs := ValidateItemRow(rec, false)
	want := []string{
		"Type must be sell, purchase, or component",
		"UOM must be Kgs or Nos",
	}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateItemRow_BufferOrdering(t *testing.T) {
	rec := validItemRecord()
	rec["min_buffer"] = NumberValue(50)
	rec["max_buffer"] = NumberValue(10)

	_, errs := ValidateItemRow(rec, false)
	want := []string{"Max buffer must be greater than or equal to min buffer"}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateItemRow_SellRequiresScrapType(t *testing.T) {
	rec := validItemRecord()
	delete(rec, "additional_attributes__scrap_type")

	_, errs := ValidateItemRow(rec, false)
	want := []string{"Scrap type is required for sell items"}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}

	// Non-sell items never need a scrap type, and it is dropped even if given.
	rec["type"] = StringValue("purchase")
	rec["additional_attributes__scrap_type"] = StringValue("scrap_a")
	item, errs := ValidateItemRow(rec, false)
	if len(errs) != 0 {
		t.Errorf("purchase item errors = %v", errs)
	}
	if item.AdditionalAttributes.ScrapType != "" {
		t.Errorf("scrap type should be empty for purchase items, got %q", item.AdditionalAttributes.ScrapType)
	}
}

func TestValidateItemRow_ScrapTypeFallbackColumn(t *testing.T) {
	rec := validItemRecord()
	delete(rec, "additional_attributes__scrap_type")
	rec["scrap_type"] = StringValue("scrap_b")

	item, errs := ValidateItemRow(rec, false)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if item.AdditionalAttributes.ScrapType != "scrap_b" {
		t.Errorf("ScrapType = %q, want scrap_b", item.AdditionalAttributes.ScrapType)
	}
}

func validBOMRecord() Record {
	return Record{
		"item_id":      NumberValue(1),
		"component_id": NumberValue(2),
		"quantity":     NumberValue(10),
	}
}

func TestValidateBOMRow_Valid(t *testing.T) {
	bom, errs := ValidateBOMRow(validBOMRecord())
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if bom.ItemID != 1 || bom.ComponentID != 2 || bom.Quantity != 10 {
		t.Errorf("bom = %+v", bom)
	}
	if bom.CreatedBy != catalog.SystemUser {
		t.Errorf("CreatedBy = %q, want system_user default", bom.CreatedBy)
	}
}

func TestValidateBOMRow_NoUpperQuantityBound(t *testing.T) {
	// Bulk rows accept any positive quantity, unlike the interactive form's
	// [1,100] bound.
	rec := validBOMRecord()
	rec["quantity"] = NumberValue(150)

	bom, errs := ValidateBOMRow(rec)
	if len(errs) != 0 {
		t.Fatalf("quantity 150 should pass the bulk path: %v", errs)
	}
	if bom.Quantity != 150 {
		t.Errorf("Quantity = %d, want 150", bom.Quantity)
	}

	// Same value fails the form path.
	formErrs := catalog.ValidateBOMForm(catalog.BOM{ItemID: 1, ComponentID: 2, Quantity: 150}, nil)
	if formErrs["quantity"] != "Quantity must be between 1 and 100" {
		t.Errorf("form errors = %v, want quantity bound violation", formErrs)
	}
}

func TestValidateBOMRow_BlankQuantityGetsBothErrors(t *testing.T) {
	rec := validBOMRecord()
	rec["quantity"] = StringValue("")

	_, errs := ValidateBOMRow(rec)
	want := []string{"Quantity is required", "Quantity must be a positive number"}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateBOMRow_MissingIDs(t *testing.T) {
	_, errs := ValidateBOMRow(Record{"quantity": NumberValue(5)})
	want := []string{"Item ID is required", "Component ID is required"}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateBOMRow_NegativeQuantity(t *testing.T) {
	rec := validBOMRecord()
	rec["quantity"] = NumberValue(-5)

	_, errs := ValidateBOMRow(rec)
	want := []string{"Quantity must be a positive number"}
	if !reflect.DeepEqual(errs, want) {
		t.Errorf("errors = %v, want %v", errs, want)
	}
}

func TestValidateBOMRow_CreatedByFromRow(t *testing.T) {
	rec := validBOMRecord()
	rec["created_by"] = StringValue("alice")

	bom, errs := ValidateBOMRow(rec)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if bom.CreatedBy != "alice" {
		t.Errorf("CreatedBy = %q, want alice", bom.CreatedBy)
	}
	if bom.LastUpdatedBy != catalog.SystemUser {
		t.Errorf("LastUpdatedBy = %q, want system_user default", bom.LastUpdatedBy)
	}
}

func TestParseKind(t *testing.T) {
	if k, ok := ParseKind("items"); !ok || k != KindItems {
		t.Errorf("ParseKind(items) = %v, %v", k, ok)
	}
	if k, ok := ParseKind("BOM"); !ok || k != KindBOM {
		t.Errorf("ParseKind(BOM) = %v, %v", k, ok)
	}
	if _, ok := ParseKind("recipes"); ok {
		t.Error("ParseKind(recipes) should fail")
	}
}
