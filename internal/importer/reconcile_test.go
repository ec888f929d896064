package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inveelabs/masterdata/internal/catalog"
)

// fakeCatalog is an in-memory stand-in for the persistence service.
type fakeCatalog struct {
	mu        sync.Mutex
	items     []catalog.Item
	created   []catalog.Item
	boms      []catalog.BOM
	failNames map[string]string // item name -> error message
	failBOMs  map[int]string    // component id -> error message
	listErr   error
	listPanic string
}

func (f *fakeCatalog) ListItems(ctx context.Context) ([]catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listPanic != "" {
		panic(f.listPanic)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]catalog.Item, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeCatalog) CreateItem(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.failNames[item.InternalItemName]; ok {
		return catalog.Item{}, &catalog.APIError{StatusCode: 500, Message: msg}
	}
	id := len(f.items) + len(f.created) + 1
	item.ID = &id
	f.created = append(f.created, item)
	return item, nil
}

func (f *fakeCatalog) CreateBOM(ctx context.Context, bom catalog.BOM) (catalog.BOM, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.failBOMs[bom.ComponentID]; ok {
		return catalog.BOM{}, &catalog.APIError{StatusCode: 500, Message: msg}
	}
	id := len(f.boms) + 1
	bom.ID = &id
	f.boms = append(f.boms, bom)
	return bom, nil
}

func existingItems() []catalog.Item {
	return []catalog.Item{
		{ID: intPtr(1), InternalItemName: "Widget"},
		{ID: intPtr(2), InternalItemName: "Gadget"},
	}
}

func runBatch(t *testing.T, svc *Service, kind Kind, fileName string, data []byte) *BatchReport {
	t.Helper()

	batchID, err := svc.StartImport(context.Background(), kind, fileName, data)
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}
	report, err := svc.GetResult(batchID)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	return report
}

func TestImportBOMBatch_Classification(t *testing.T) {
	data := buildTestWorkbook(t, [][]any{
		{"item_id", "component_id", "quantity"},
		{1, 2, 10},       // accepted
		{1, 999, 5},      // pending: component unknown
		{"", 2, 5},       // rejected: item id missing
	})

	cat := &fakeCatalog{items: existingItems()}
	svc := NewService(cat, time.Minute)

	report := runBatch(t, svc, KindBOM, "bom.xlsx", data)

	if report.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", report.TotalRows)
	}
	if report.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", report.Accepted)
	}
	if len(report.PendingBOMs) != 1 || report.PendingBOMs[0].ComponentID != 999 {
		t.Errorf("PendingBOMs = %+v", report.PendingBOMs)
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("Rejected = %+v", report.Rejected)
	}

	// Workbook data rows count the header, so the bad row is row 4.
	rej := report.Rejected[0]
	if rej.Row != 4 {
		t.Errorf("rejected row = %d, want 4", rej.Row)
	}
	if len(rej.Errors) != 1 || rej.Errors[0] != "Item ID is required" {
		t.Errorf("rejected errors = %v", rej.Errors)
	}

	// Counts invariant: every source row lands in exactly one bucket.
	if report.Accepted+report.Pending()+len(report.Rejected) != report.TotalRows {
		t.Errorf("buckets do not add up: %+v", report)
	}

	// Review stores hold the batch outcome.
	if got := len(svc.BOMs.Pending()); got != 1 {
		t.Errorf("BOM pending store = %d, want 1", got)
	}
	if got := len(svc.BOMs.Errors()); got != 1 {
		t.Errorf("BOM error store = %d, want 1", got)
	}

	// The accepted row was actually committed.
	if len(cat.boms) != 1 || cat.boms[0].ItemID != 1 || cat.boms[0].ComponentID != 2 {
		t.Errorf("committed boms = %+v", cat.boms)
	}
}

func TestImportBOMBatch_CommitFailureBecomesRejection(t *testing.T) {
	data := buildTestWorkbook(t, [][]any{
		{"item_id", "component_id", "quantity"},
		{1, 2, 10},
	})

	cat := &fakeCatalog{
		items:    existingItems(),
		failBOMs: map[int]string{2: "duplicate BOM entry"},
	}
	svc := NewService(cat, time.Minute)

	report := runBatch(t, svc, KindBOM, "bom.xlsx", data)

	if report.Accepted != 0 {
		t.Errorf("Accepted = %d, want 0", report.Accepted)
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("Rejected = %+v", report.Rejected)
	}
	// The persistence service's message surfaces verbatim.
	if report.Rejected[0].Errors[0] != "duplicate BOM entry" {
		t.Errorf("error = %q, want verbatim service message", report.Rejected[0].Errors[0])
	}
	if report.Rejected[0].Row != 2 {
		t.Errorf("row = %d, want 2", report.Rejected[0].Row)
	}
}

func TestImportItemBatch_CSV(t *testing.T) {
	csv := strings.Join([]string{
		"id,internal_item_name,tenant_id,type,uom,min_buffer,max_buffer,scrap_type",
		"1,Sprocket,1,component,Nos,1,10,",   // accepted
		"2,widget,1,component,Nos,1,10,",     // pending: name collides with Widget
		"3,,1,component,Nos,1,10,",           // rejected: name missing
	}, "\n")

	cat := &fakeCatalog{items: existingItems()}
	svc := NewService(cat, time.Minute)

	report := runBatch(t, svc, KindItems, "items.csv", []byte(csv))

	if report.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", report.TotalRows)
	}
	if report.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", report.Accepted)
	}
	if len(report.PendingItems) != 1 || report.PendingItems[0].InternalItemName != "widget" {
		t.Errorf("PendingItems = %+v", report.PendingItems)
	}
	if len(report.Rejected) != 1 {
		t.Fatalf("Rejected = %+v", report.Rejected)
	}
	// Item rows are numbered from 1 in data order.
	if report.Rejected[0].Row != 3 {
		t.Errorf("rejected row = %d, want 3", report.Rejected[0].Row)
	}
	if report.Rejected[0].Errors[0] != "Item name is required" {
		t.Errorf("rejected errors = %v", report.Rejected[0].Errors)
	}

	if len(cat.created) != 1 || cat.created[0].InternalItemName != "Sprocket" {
		t.Errorf("created items = %+v", cat.created)
	}

	// Item review stores replaced, BOM stores untouched.
	if got := len(svc.Items.Pending()); got != 1 {
		t.Errorf("item pending store = %d, want 1", got)
	}
	if got := len(svc.BOMs.Pending()); got != 0 {
		t.Errorf("BOM pending store = %d, want 0", got)
	}
}

func TestImportItemBatch_RejectionsSortedByRow(t *testing.T) {
	lines := []string{"id,internal_item_name,tenant_id,type,uom,min_buffer,max_buffer"}
	for i := 1; i <= 6; i++ {
		name := fmt.Sprintf("Part-%d", i)
		if i%2 == 0 {
			name = "" // rejected rows interleaved with accepted ones
		}
		lines = append(lines, fmt.Sprintf("%d,%s,1,component,Nos,1,10", i, name))
	}

	cat := &fakeCatalog{}
	svc := NewService(cat, time.Minute)

	report := runBatch(t, svc, KindItems, "items.csv", []byte(strings.Join(lines, "\n")))

	if len(report.Rejected) != 3 {
		t.Fatalf("Rejected = %d, want 3", len(report.Rejected))
	}
	for i := 1; i < len(report.Rejected); i++ {
		if report.Rejected[i-1].Row > report.Rejected[i].Row {
			t.Errorf("rejections out of order: %d before %d", report.Rejected[i-1].Row, report.Rejected[i].Row)
		}
	}
	if report.Accepted != 3 {
		t.Errorf("Accepted = %d, want 3", report.Accepted)
	}
}

func TestImportBatch_FormatErrorIsBatchFatal(t *testing.T) {
	cat := &fakeCatalog{items: existingItems()}
	svc := NewService(cat, time.Minute)

	// Seed the store with an earlier outcome to prove replacement.
	svc.BOMs.SetPending([]catalog.BOM{{ItemID: 1, ComponentID: 2}})

	report := runBatch(t, svc, KindBOM, "bom.csv", []byte("item_id,component_id\n1,2\n"))

	if report.Error != "Unsupported file format. Please upload an XLSX file." {
		t.Errorf("Error = %q", report.Error)
	}
	if len(report.Rejected) != 1 || report.Rejected[0].Row != 0 {
		t.Errorf("want a single synthetic row-0 rejection, got %+v", report.Rejected)
	}

	// A failed batch still replaces the review outcome.
	if got := len(svc.BOMs.Pending()); got != 0 {
		t.Errorf("stale pending rows survived a failed batch: %d", got)
	}
	if got := len(svc.BOMs.Errors()); got != 1 {
		t.Errorf("error store = %d, want 1", got)
	}
}

func TestImportBatch_SnapshotIsPreBatchOnly(t *testing.T) {
	// Two rows with the same fresh name: the snapshot is taken before the
	// batch, so neither row sees the other and both are accepted.
	csv := strings.Join([]string{
		"id,internal_item_name,tenant_id,type,uom,min_buffer,max_buffer",
		"1,Sprocket,1,component,Nos,1,10",
		"2,Sprocket,1,component,Nos,1,10",
	}, "\n")

	cat := &fakeCatalog{}
	svc := NewService(cat, time.Minute)

	report := runBatch(t, svc, KindItems, "items.csv", []byte(csv))

	if report.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2 (snapshot must not see mid-batch creates)", report.Accepted)
	}
	if report.Pending() != 0 || len(report.Rejected) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestImportBatch_ProgressMonotonic(t *testing.T) {
	data := buildTestWorkbook(t, [][]any{
		{"item_id", "component_id", "quantity"},
		{1, 2, 1},
		{1, 2, 2},
		{1, 2, 3},
	})

	cat := &fakeCatalog{items: existingItems()}
	svc := NewService(cat, time.Minute)

	batchID, err := svc.StartImport(context.Background(), KindBOM, "bom.xlsx", data)
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}

	ch, err := svc.SubscribeProgress(batchID)
	if err != nil {
		t.Fatalf("SubscribeProgress() error = %v", err)
	}

	last := -1
	for progress := range ch {
		pct := progress.Percent()
		if pct < last {
			t.Errorf("progress went backwards: %d after %d", pct, last)
		}
		last = pct
	}

	report, err := svc.GetResult(batchID)
	if err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	if report.Accepted != 3 {
		t.Errorf("Accepted = %d, want 3", report.Accepted)
	}
}

func TestImportBatch_ListItemsFailureIsBatchFatal(t *testing.T) {
	cat := &fakeCatalog{listErr: fmt.Errorf("connection refused")}
	svc := NewService(cat, time.Minute)

	data := buildTestWorkbook(t, [][]any{
		{"item_id", "component_id", "quantity"},
		{1, 2, 1},
	})

	report := runBatch(t, svc, KindBOM, "bom.xlsx", data)

	if report.Error == "" || !strings.Contains(report.Error, "connection refused") {
		t.Errorf("Error = %q, want snapshot failure", report.Error)
	}
	if report.Accepted != 0 {
		t.Errorf("Accepted = %d, want 0", report.Accepted)
	}
}

func TestImportBatch_PanicBecomesFailedReport(t *testing.T) {
	cat := &fakeCatalog{listPanic: "boom"}
	svc := NewService(cat, time.Minute)

	data := buildTestWorkbook(t, [][]any{
		{"item_id", "component_id", "quantity"},
		{1, 2, 1},
	})

	report := runBatch(t, svc, KindBOM, "bom.xlsx", data)

	if !strings.Contains(report.Error, "boom") {
		t.Errorf("Error = %q, want the recovered panic in it", report.Error)
	}
	if len(report.Rejected) != 1 || report.Rejected[0].Row != 0 {
		t.Errorf("want a single synthetic row-0 rejection, got %+v", report.Rejected)
	}
	if got := len(svc.BOMs.Errors()); got != 1 {
		t.Errorf("error store = %d, want 1", got)
	}

	// The service survives and the next batch runs normally.
	cat.mu.Lock()
	cat.listPanic = ""
	cat.items = existingItems()
	cat.mu.Unlock()

	report = runBatch(t, svc, KindBOM, "bom.xlsx", data)
	if report.Error != "" || report.Accepted != 1 {
		t.Errorf("follow-up batch = %+v, want 1 accepted", report)
	}
}

func TestGetProgress_WhileBatchRuns(t *testing.T) {
	rows := [][]any{{"item_id", "component_id", "quantity"}}
	for i := 0; i < 50; i++ {
		rows = append(rows, []any{1, 2, i + 1})
	}
	data := buildTestWorkbook(t, rows)

	cat := &fakeCatalog{items: existingItems()}
	svc := NewService(cat, time.Minute)

	batchID, err := svc.StartImport(context.Background(), KindBOM, "bom.xlsx", data)
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}

	// Poll concurrently with the batch goroutine's writes.
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			progress, err := svc.GetProgress(batchID)
			if err != nil {
				return
			}
			if pct := progress.Percent(); pct < 0 || pct > 100 {
				t.Errorf("Percent() = %d, want 0..100", pct)
				return
			}
			if progress.Phase == PhaseComplete || progress.Phase == PhaseFailed {
				return
			}
		}
	}()

	if _, err := svc.GetResult(batchID); err != nil {
		t.Fatalf("GetResult() error = %v", err)
	}
	<-polled

	progress, err := svc.GetProgress(batchID)
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if progress.Phase != PhaseComplete {
		t.Errorf("Phase = %q, want %q", progress.Phase, PhaseComplete)
	}
	if progress.Percent() != 100 {
		t.Errorf("Percent() = %d, want 100", progress.Percent())
	}
}

func TestGetProgress_UnknownBatch(t *testing.T) {
	svc := NewService(&fakeCatalog{}, time.Minute)
	if _, err := svc.GetProgress("nope"); err == nil {
		t.Fatal("expected error for unknown batch")
	}
}

func TestStartImport_UnknownKind(t *testing.T) {
	svc := NewService(&fakeCatalog{}, time.Minute)
	if _, err := svc.StartImport(context.Background(), Kind("recipes"), "x.xlsx", nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestGetResult_UnknownBatch(t *testing.T) {
	svc := NewService(&fakeCatalog{}, time.Minute)
	if _, err := svc.GetResult("nope"); err == nil {
		t.Fatal("expected error for unknown batch")
	}
}
