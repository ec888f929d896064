package importer

import (
	"fmt"
	"strings"

	"github.com/inveelabs/masterdata/internal/catalog"
)

// Snapshot is a point-in-time view of the catalog taken once per batch,
// before any row is classified. Every cross-record check in the batch runs
// against this frozen view; records created mid-batch never influence later
// rows of the same batch.
type Snapshot struct {
	ids   map[int]bool
	names map[string]bool
}

// NewSnapshot indexes the given items for resolution. Both the internal and
// the customer-facing names count as taken, case-insensitively.
func NewSnapshot(items []catalog.Item) *Snapshot {
	s := &Snapshot{
		ids:   make(map[int]bool, len(items)),
		names: make(map[string]bool, len(items)*2),
	}
	for _, item := range items {
		if item.ID != nil {
			s.ids[*item.ID] = true
		}
		if n := strings.ToLower(strings.TrimSpace(item.InternalItemName)); n != "" {
			s.names[n] = true
		}
		if n := strings.ToLower(strings.TrimSpace(item.CustomerItemName)); n != "" {
			s.names[n] = true
		}
	}
	return s
}

// HasItem reports whether an item with the given id existed at snapshot time.
func (s *Snapshot) HasItem(id int) bool { return s.ids[id] }

// NameTaken reports whether a name collides with any existing item name,
// internal or customer-facing, ignoring case and surrounding whitespace.
func (s *Snapshot) NameTaken(name string) bool {
	return s.names[strings.ToLower(strings.TrimSpace(name))]
}

// ResolveItem checks a structurally valid item candidate against the
// snapshot. A name collision is not an error: the row is deferred for manual
// review with a reason, and the batch keeps going.
func (s *Snapshot) ResolveItem(item catalog.Item) (pending bool, reason string) {
	if s.NameTaken(item.InternalItemName) {
		return true, fmt.Sprintf("Item with name %q already exists", item.InternalItemName)
	}
	return false, ""
}

// ResolveBOM checks a structurally valid BOM candidate against the snapshot.
// A missing parent or component defers the row for manual review; the reason
// names every missing side.
func (s *Snapshot) ResolveBOM(bom catalog.BOM) (pending bool, reason string) {
	missingItem := !s.HasItem(bom.ItemID)
	missingComponent := !s.HasItem(bom.ComponentID)

	switch {
	case missingItem && missingComponent:
		return true, fmt.Sprintf("Item %d and component %d do not exist", bom.ItemID, bom.ComponentID)
	case missingItem:
		return true, fmt.Sprintf("Item %d does not exist", bom.ItemID)
	case missingComponent:
		return true, fmt.Sprintf("Component %d does not exist", bom.ComponentID)
	}
	return false, ""
}
