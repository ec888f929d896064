package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/inveelabs/masterdata/internal/catalog"
)

// DefaultBatchTimeout is the maximum duration for one import batch.
var DefaultBatchTimeout = 10 * time.Minute

// itemCommitWorkers bounds the concurrent item creates per batch.
var itemCommitWorkers = 8

// Catalog is the subset of the persistence API the reconciler needs.
// *catalog.Client satisfies it.
type Catalog interface {
	ListItems(ctx context.Context) ([]catalog.Item, error)
	CreateItem(ctx context.Context, item catalog.Item) (catalog.Item, error)
	CreateBOM(ctx context.Context, bom catalog.BOM) (catalog.BOM, error)
}

// BatchPhase indicates the current stage of batch processing.
type BatchPhase string

const (
	PhaseStarting    BatchPhase = "starting"
	PhaseParsing     BatchPhase = "parsing"
	PhaseClassifying BatchPhase = "classifying"
	PhaseCommitting  BatchPhase = "committing"
	PhaseComplete    BatchPhase = "complete"
	PhaseFailed      BatchPhase = "failed"
	PhaseCancelled   BatchPhase = "cancelled"
)

// BatchProgress is a point-in-time view of a running batch.
type BatchProgress struct {
	BatchID    string     `json:"batch_id"`
	Kind       Kind       `json:"kind"`
	Phase      BatchPhase `json:"phase"`
	FileName   string     `json:"file_name"`
	Classified int        `json:"classified"`
	Total      int        `json:"total"`
	Error      string     `json:"error,omitempty"`
}

// Percent reports classification progress as 0..100. An empty batch is
// complete by definition.
func (p BatchProgress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Classified * 100 / p.Total
}

// RejectedRow is one row that failed validation or commit. Row numbering
// matches what the user sees in their source file; a Row of 0 marks a
// batch-level failure rather than a specific row.
type RejectedRow struct {
	Row    int               `json:"row"`
	Errors []string          `json:"errors"`
	Data   map[string]string `json:"data,omitempty"`
}

// BatchReport is the final outcome of an import batch. Every source row is
// accounted for exactly once: Accepted + pending + len(Rejected) = TotalRows
// unless Error marks the whole batch as failed.
type BatchReport struct {
	BatchID      string         `json:"batch_id"`
	Kind         Kind           `json:"kind"`
	FileName     string         `json:"file_name"`
	TotalRows    int            `json:"total_rows"`
	Accepted     int            `json:"accepted"`
	PendingItems []catalog.Item `json:"pending_items,omitempty"`
	PendingBOMs  []catalog.BOM  `json:"pending_boms,omitempty"`
	Rejected     []RejectedRow  `json:"rejected,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Error        string         `json:"error,omitempty"`
}

// Pending reports how many rows the batch deferred for manual review.
func (r *BatchReport) Pending() int {
	return len(r.PendingItems) + len(r.PendingBOMs)
}

// Service runs import batches against the persistence service and retains
// each kind's latest review outcome. One batch per call to StartImport;
// batches for different kinds may run concurrently, the per-batch snapshot
// keeps them independent.
type Service struct {
	catalog Catalog
	timeout time.Duration

	// Items and BOMs hold the latest batch outcome per kind, replaced
	// wholesale when a new batch finishes.
	Items *ReviewStore[catalog.Item]
	BOMs  *ReviewStore[catalog.BOM]

	mu      sync.RWMutex
	batches map[string]*activeBatch
}

type activeBatch struct {
	ID         string
	Kind       Kind
	FileName   string
	Cancel     context.CancelFunc
	Progress   BatchProgress // guarded by ListenerMu
	Report     *BatchReport
	Done       chan struct{}
	Listeners  []chan BatchProgress
	ListenerMu sync.Mutex
}

// NewService creates a reconciliation service backed by the given catalog.
// A non-positive timeout falls back to DefaultBatchTimeout.
func NewService(cat Catalog, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	return &Service{
		catalog: cat,
		timeout: timeout,
		Items:   NewReviewStore[catalog.Item](),
		BOMs:    NewReviewStore[catalog.BOM](),
		batches: make(map[string]*activeBatch),
	}
}

// StartImport begins an asynchronous import batch and returns its id
// immediately. Use SubscribeProgress for live updates and GetResult for the
// final report.
func (s *Service) StartImport(ctx context.Context, kind Kind, fileName string, fileData []byte) (string, error) {
	if kind != KindItems && kind != KindBOM {
		return "", fmt.Errorf("unknown import kind: %s", kind)
	}

	batchID := uuid.New().String()
	batchCtx, cancel := context.WithTimeout(context.Background(), s.timeout)

	batch := &activeBatch{
		ID:       batchID,
		Kind:     kind,
		FileName: fileName,
		Cancel:   cancel,
		Progress: BatchProgress{
			BatchID:  batchID,
			Kind:     kind,
			Phase:    PhaseStarting,
			FileName: fileName,
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan BatchProgress, 0),
	}

	s.mu.Lock()
	s.batches[batchID] = batch
	s.mu.Unlock()

	go func() {
		defer cancel()
		s.process(batchCtx, batch, fileData)
	}()

	return batchID, nil
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the batch completes.
func (s *Service) SubscribeProgress(batchID string) (<-chan BatchProgress, error) {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("batch not found: %s", batchID)
	}

	ch := make(chan BatchProgress, 10)

	batch.ListenerMu.Lock()
	batch.Listeners = append(batch.Listeners, ch)
	// Send current progress immediately
	select {
	case ch <- batch.Progress:
	default:
	}
	batch.ListenerMu.Unlock()

	return ch, nil
}

// CancelBatch cancels an in-progress batch.
func (s *Service) CancelBatch(batchID string) error {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("batch not found: %s", batchID)
	}

	batch.Cancel()
	return nil
}

// GetResult returns the final report of a batch. Blocks until the batch
// completes if still in progress.
func (s *Service) GetResult(batchID string) (*BatchReport, error) {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("batch not found: %s", batchID)
	}

	<-batch.Done
	return batch.Report, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(batchID string) (BatchProgress, error) {
	s.mu.RLock()
	batch, ok := s.batches[batchID]
	s.mu.RUnlock()

	if !ok {
		return BatchProgress{}, fmt.Errorf("batch not found: %s", batchID)
	}

	return batch.snapshotProgress(), nil
}

// process runs one batch end to end: parse, snapshot, classify, commit,
// publish. The latest review outcome for the batch's kind is replaced
// wholesale, even when the batch fails before classifying a single row.
func (s *Service) process(ctx context.Context, batch *activeBatch, fileData []byte) {
	startTime := time.Now()

	defer func() {
		batch.closeListeners()
		close(batch.Done)
		s.cleanup(batch.ID, 5*time.Minute)
	}()

	// Recovers before the terminal cleanup above runs, so a panicked batch
	// publishes a failed report and Done closes exactly once.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in import batch",
				"batch_id", batch.ID,
				"kind", batch.Kind,
				"panic", r,
			)
			s.failBatch(batch, startTime, fmt.Sprintf("internal error: %v", r))
		}
	}()

	batch.updateProgress(func(p *BatchProgress) { p.Phase = PhaseParsing })

	records, format, err := ParseForKind(fileData, batch.FileName, batch.Kind)
	if err != nil {
		s.failBatch(batch, startTime, err.Error())
		return
	}

	snapItems, err := s.catalog.ListItems(ctx)
	if err != nil {
		s.failBatch(batch, startTime, fmt.Sprintf("Failed to load existing items: %v", err))
		return
	}
	snap := NewSnapshot(snapItems)

	var report *BatchReport
	switch batch.Kind {
	case KindItems:
		report = s.runItems(ctx, batch, records, format, snap)
	case KindBOM:
		report = s.runBOMs(ctx, batch, records, snap)
	}

	report.BatchID = batch.ID
	report.Kind = batch.Kind
	report.FileName = batch.FileName
	report.Duration = time.Since(startTime)
	batch.Report = report

	s.publish(batch.Kind, report)

	batch.updateProgress(func(p *BatchProgress) {
		switch {
		case report.Error != "":
			p.Phase = PhaseFailed
			p.Error = report.Error
		case ctx.Err() != nil:
			p.Phase = PhaseCancelled
		default:
			p.Phase = PhaseComplete
		}
	})

	slog.Info("import batch finished",
		"batch_id", batch.ID,
		"kind", batch.Kind,
		"total", report.TotalRows,
		"accepted", report.Accepted,
		"pending", report.Pending(),
		"rejected", len(report.Rejected),
		"duration", report.Duration,
	)
}

// failBatch records a batch-level failure as a synthetic row-0 rejection and
// still replaces the kind's review outcome, so stale results from an older
// batch never outlive a newer attempt.
func (s *Service) failBatch(batch *activeBatch, startTime time.Time, reason string) {
	report := &BatchReport{
		BatchID:  batch.ID,
		Kind:     batch.Kind,
		FileName: batch.FileName,
		Rejected: []RejectedRow{{Row: 0, Errors: []string{reason}}},
		Duration: time.Since(startTime),
		Error:    reason,
	}
	batch.Report = report
	s.publish(batch.Kind, report)

	batch.updateProgress(func(p *BatchProgress) {
		p.Phase = PhaseFailed
		p.Error = reason
	})

	slog.Error("import batch failed",
		"batch_id", batch.ID,
		"kind", batch.Kind,
		"error", reason,
	)
}

// publish replaces the review stores for the batch's kind with the report's
// outcome.
func (s *Service) publish(kind Kind, report *BatchReport) {
	switch kind {
	case KindItems:
		s.Items.SetPending(report.PendingItems)
		s.Items.SetErrors(report.Rejected)
	case KindBOM:
		s.BOMs.SetPending(report.PendingBOMs)
		s.BOMs.SetErrors(report.Rejected)
	}
}

type acceptedItem struct {
	row  int
	item catalog.Item
	data map[string]string
}

// runItems classifies every item row against the pre-batch snapshot, then
// commits the accepted rows concurrently. Item rows are numbered from 1 in
// data order for both formats; only the BOM path counts the header row.
//
// A commit failure does not abort the batch: the failing row converts to a
// rejection carrying the persistence service's message verbatim, and the
// rest of the batch proceeds.
func (s *Service) runItems(ctx context.Context, batch *activeBatch, records []Record, format SourceFormat, snap *Snapshot) *BatchReport {
	report := &BatchReport{TotalRows: len(records)}
	requireID := format == FormatDelimited

	var accepted []acceptedItem
	batch.updateProgress(func(p *BatchProgress) {
		p.Phase = PhaseClassifying
		p.Total = len(records)
	})

	for i, rec := range records {
		row := i + 1

		item, errs := ValidateItemRow(rec, requireID)
		if len(errs) > 0 {
			report.Rejected = append(report.Rejected, RejectedRow{
				Row:    row,
				Errors: errs,
				Data:   recordData(rec),
			})
		} else if pending, reason := snap.ResolveItem(item); pending {
			slog.Debug("item row deferred", "batch_id", batch.ID, "row", row, "reason", reason)
			report.PendingItems = append(report.PendingItems, item)
		} else {
			accepted = append(accepted, acceptedItem{row: row, item: item, data: recordData(rec)})
		}

		classified := i + 1
		batch.updateProgress(func(p *BatchProgress) { p.Classified = classified })
	}

	batch.updateProgress(func(p *BatchProgress) { p.Phase = PhaseCommitting })

	var (
		commitMu      sync.Mutex
		acceptedCount int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(itemCommitWorkers)
	for _, a := range accepted {
		a := a
		g.Go(func() error {
			if _, err := s.catalog.CreateItem(gctx, a.item); err != nil {
				commitMu.Lock()
				report.Rejected = append(report.Rejected, RejectedRow{
					Row:    a.row,
					Errors: []string{err.Error()},
					Data:   a.data,
				})
				commitMu.Unlock()
				return nil // partial success, keep committing
			}
			commitMu.Lock()
			acceptedCount++
			commitMu.Unlock()
			return nil
		})
	}
	g.Wait()
	report.Accepted = acceptedCount

	sort.Slice(report.Rejected, func(i, j int) bool {
		return report.Rejected[i].Row < report.Rejected[j].Row
	})
	return report
}

// runBOMs classifies every BOM row against the pre-batch snapshot, then
// commits the accepted rows one at a time in source order. BOM uploads are
// workbook-only, so data rows are numbered from 2.
func (s *Service) runBOMs(ctx context.Context, batch *activeBatch, records []Record, snap *Snapshot) *BatchReport {
	report := &BatchReport{TotalRows: len(records)}

	type acceptedBOM struct {
		row  int
		bom  catalog.BOM
		data map[string]string
	}
	var accepted []acceptedBOM

	batch.updateProgress(func(p *BatchProgress) {
		p.Phase = PhaseClassifying
		p.Total = len(records)
	})

	for i, rec := range records {
		row := i + 2

		bom, errs := ValidateBOMRow(rec)
		if len(errs) > 0 {
			report.Rejected = append(report.Rejected, RejectedRow{
				Row:    row,
				Errors: errs,
				Data:   recordData(rec),
			})
		} else if pending, reason := snap.ResolveBOM(bom); pending {
			slog.Debug("BOM row deferred", "batch_id", batch.ID, "row", row, "reason", reason)
			report.PendingBOMs = append(report.PendingBOMs, bom)
		} else {
			accepted = append(accepted, acceptedBOM{row: row, bom: bom, data: recordData(rec)})
		}

		classified := i + 1
		batch.updateProgress(func(p *BatchProgress) { p.Classified = classified })
	}

	batch.updateProgress(func(p *BatchProgress) { p.Phase = PhaseCommitting })

	for _, a := range accepted {
		if _, err := s.catalog.CreateBOM(ctx, a.bom); err != nil {
			report.Rejected = append(report.Rejected, RejectedRow{
				Row:    a.row,
				Errors: []string{err.Error()},
				Data:   a.data,
			})
			continue
		}
		report.Accepted++
	}

	sort.Slice(report.Rejected, func(i, j int) bool {
		return report.Rejected[i].Row < report.Rejected[j].Row
	})
	return report
}

// recordData renders a record's cells as strings for error reporting.
func recordData(rec Record) map[string]string {
	if len(rec) == 0 {
		return nil
	}
	data := make(map[string]string, len(rec))
	for key, val := range rec {
		data[key] = val.String()
	}
	return data
}

// updateProgress applies mutate under the listener lock and fans the new
// snapshot out to every listener. ListenerMu guards all progress state, so
// readers never observe a half-written update.
func (batch *activeBatch) updateProgress(mutate func(*BatchProgress)) {
	batch.ListenerMu.Lock()
	defer batch.ListenerMu.Unlock()

	mutate(&batch.Progress)
	for _, ch := range batch.Listeners {
		select {
		case ch <- batch.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// snapshotProgress returns a copy of the current progress.
func (batch *activeBatch) snapshotProgress() BatchProgress {
	batch.ListenerMu.Lock()
	defer batch.ListenerMu.Unlock()
	return batch.Progress
}

// closeListeners closes all listener channels.
func (batch *activeBatch) closeListeners() {
	batch.ListenerMu.Lock()
	defer batch.ListenerMu.Unlock()

	for _, ch := range batch.Listeners {
		close(ch)
	}
	batch.Listeners = nil
}

// cleanup removes the batch from tracking after a delay.
func (s *Service) cleanup(batchID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.batches, batchID)
		s.mu.Unlock()
	})
}
