package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/inveelabs/masterdata/internal/catalog"
	"github.com/inveelabs/masterdata/internal/importer"
	"github.com/inveelabs/masterdata/internal/logging"
)

// proxyError maps a persistence-service failure onto our response. API
// errors keep their status and message; transport failures become a 502.
func proxyError(w http.ResponseWriter, err error) {
	var apiErr *catalog.APIError
	if errors.As(err, &apiErr) {
		writeError(w, apiErr.StatusCode, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.ListItems(r.Context())
	if err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var item catalog.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if fieldErrs := catalog.ValidateItemForm(item); len(fieldErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	}

	created, err := s.catalog.CreateItem(r.Context(), item)
	if err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var item catalog.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if fieldErrs := catalog.ValidateItemForm(item); len(fieldErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	}

	updated, err := s.catalog.UpdateItem(r.Context(), id, item)
	if err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := s.catalog.DeleteItem(r.Context(), id); err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListBOMs(w http.ResponseWriter, r *http.Request) {
	boms, err := s.catalog.ListBOMs(r.Context())
	if err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boms)
}

// validateBOMAgainstItems fetches the current items so the role cross-checks
// can run. A fetch failure degrades to structural checks only.
func (s *Server) validateBOMAgainstItems(r *http.Request, bom catalog.BOM) catalog.FieldErrors {
	items, err := s.catalog.ListItems(r.Context())
	if err != nil {
		items = nil
	}
	return catalog.ValidateBOMForm(bom, items)
}

func (s *Server) handleCreateBOM(w http.ResponseWriter, r *http.Request) {
	var bom catalog.BOM
	if err := json.NewDecoder(r.Body).Decode(&bom); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if fieldErrs := s.validateBOMAgainstItems(r, bom); len(fieldErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	}

	created, err := s.catalog.CreateBOM(r.Context(), bom)
	if err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateBOM(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "bomID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid BOM id")
		return
	}

	var bom catalog.BOM
	if err := json.NewDecoder(r.Body).Decode(&bom); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if fieldErrs := s.validateBOMAgainstItems(r, bom); len(fieldErrs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	}

	updated, err := s.catalog.UpdateBOM(r.Context(), id, bom)
	if err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteBOM(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "bomID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid BOM id")
		return
	}

	if err := s.catalog.DeleteBOM(r.Context(), id); err != nil {
		proxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleDownloadTemplate serves the upload template workbook for a kind.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	kind, ok := importer.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown import kind")
		return
	}

	data, err := importer.TemplateFor(kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("%s_template.xlsx", kind)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(data)
}

// handleImport starts an asynchronous import batch from an uploaded file.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	kind, ok := importer.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown import kind")
		return
	}

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	batchID, err := s.importer.StartImport(r.Context(), kind, header.Filename, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := logging.WithFields(r.Context(), "batch_id", batchID, "kind", kind)
	log.Info("import accepted", "file", header.Filename, "size", len(data))

	writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": batchID})
}

// handleImportProgress streams batch progress via Server-Sent Events.
// Supports resumption via lastEventId query parameter for reconnection.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.importer.SubscribeProgress(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed, batch complete or cancelled
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events that were already sent (for resumption)
			if lastEventIDStr != "" && currentPercent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult returns the final report of a batch. Blocks until the
// batch completes.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	report, err := s.importer.GetResult(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleImportErrorsCSV exports a batch's rejected rows as CSV.
func (s *Server) handleImportErrorsCSV(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	report, err := s.importer.GetResult(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	data, err := importer.ErrorReportCSV(report.Rejected)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("%s_errors_%s.csv", report.Kind, batchID)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(data)
}

// handleCancelImport cancels an in-progress batch and returns the progress
// state at the time of the cancel request.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "missing batch ID")
		return
	}

	if err := s.importer.CancelBatch(batchID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	progress, err := s.importer.GetProgress(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled", "progress": progress})
}

// handlePendingRows returns the latest batch's deferred rows for a kind.
func (s *Server) handlePendingRows(w http.ResponseWriter, r *http.Request) {
	kind, ok := importer.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown import kind")
		return
	}

	switch kind {
	case importer.KindItems:
		writeJSON(w, http.StatusOK, map[string]any{"pending": s.importer.Items.Pending()})
	case importer.KindBOM:
		writeJSON(w, http.StatusOK, map[string]any{"pending": s.importer.BOMs.Pending()})
	}
}

// handleClearPending discards the latest batch's deferred rows for a kind.
func (s *Server) handleClearPending(w http.ResponseWriter, r *http.Request) {
	kind, ok := importer.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown import kind")
		return
	}

	switch kind {
	case importer.KindItems:
		s.importer.Items.ClearPending()
	case importer.KindBOM:
		s.importer.BOMs.ClearPending()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleErrorRows returns the latest batch's rejected rows for a kind.
func (s *Server) handleErrorRows(w http.ResponseWriter, r *http.Request) {
	kind, ok := importer.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown import kind")
		return
	}

	switch kind {
	case importer.KindItems:
		writeJSON(w, http.StatusOK, map[string]any{"errors": s.importer.Items.Errors()})
	case importer.KindBOM:
		writeJSON(w, http.StatusOK, map[string]any{"errors": s.importer.BOMs.Errors()})
	}
}

// handleClearErrors discards the latest batch's rejected rows for a kind.
func (s *Server) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	kind, ok := importer.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown import kind")
		return
	}

	switch kind {
	case importer.KindItems:
		s.importer.Items.ClearErrors()
	case importer.KindBOM:
		s.importer.BOMs.ClearErrors()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
