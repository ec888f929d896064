package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

// itemTemplateHeader lists the item upload columns in sheet order. Nested
// attributes are flattened with a double-underscore separator so a flat
// sheet row can carry them.
var itemTemplateHeader = []string{
	"id",
	"internal_item_name",
	"tenant_id",
	"type",
	"uom",
	"min_buffer",
	"max_buffer",
	"created_by",
	"last_updated_by",
	"is_deleted",
	"item_description",
	"additional_attributes__avg_weight_needed",
	"additional_attributes__scrap_type",
}

var bomTemplateHeader = []string{
	"id",
	"item_id",
	"component_id",
	"quantity",
	"created_by",
	"last_updated_by",
	"createdAt",
	"updatedAt",
}

// ItemTemplate builds the downloadable item upload workbook: a header row
// plus two sample rows showing a sell item (scrap type required) and a
// purchase item.
func ItemTemplate() ([]byte, error) {
	rows := [][]any{
		{1, "SELL_ITEM_001", 1, "sell", "Kgs", 10, 100, "system_user", "system_user", false, "Example sell item", true, "scrap_a"},
		{2, "PURCHASE_ITEM_001", 1, "purchase", "Nos", 5, 50, "system_user", "system_user", false, "Example purchase item", false, ""},
	}
	return buildWorkbook(itemTemplateHeader, rows)
}

// BOMTemplate builds the downloadable BOM upload workbook with one sample
// row linking item 1 to component 2.
func BOMTemplate() ([]byte, error) {
	rows := [][]any{
		{1, 1, 2, 10, "system_user", "system_user", "2024-02-01T12:00:00Z", "2024-02-01T12:00:00Z"},
	}
	return buildWorkbook(bomTemplateHeader, rows)
}

// TemplateFor returns the upload template workbook for an entity kind.
func TemplateFor(kind Kind) ([]byte, error) {
	switch kind {
	case KindItems:
		return ItemTemplate()
	case KindBOM:
		return BOMTemplate()
	}
	return nil, fmt.Errorf("unknown import kind: %s", kind)
}

func buildWorkbook(header []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	cell, err := excelize.CoordinatesToCellName(1, 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, cell, &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrorReportCSV renders rejected rows as a downloadable CSV, one line per
// individual error. The first two columns are the source row number and the
// error message; the remaining columns are the union of the rows' data keys,
// sorted, so users can fix and re-upload.
func ErrorReportCSV(rejected []RejectedRow) ([]byte, error) {
	keySet := make(map[string]bool)
	for _, row := range rejected {
		for key := range row.Data {
			keySet[key] = true
		}
	}
	dataKeys := make([]string, 0, len(keySet))
	for key := range keySet {
		dataKeys = append(dataKeys, key)
	}
	sort.Strings(dataKeys)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{"Row", "Error"}, dataKeys...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, row := range rejected {
		for _, msg := range row.Errors {
			record := make([]string, 0, len(header))
			record = append(record, fmt.Sprintf("%d", row.Row), msg)
			for _, key := range dataKeys {
				record = append(record, row.Data[key])
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
