package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/liftlog/internal/ingest"
	"github.com/claude/liftlog/internal/ingest/alpha"
	"github.com/claude/liftlog/internal/storage"
)

const maxImportBytes = 32 << 20

func (s *Server) handleAlphaImport(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	start := time.Now()

	catalog, err := s.store.ListCatalog(ctx, uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bodyweight, err := s.store.Bodyweight(ctx, uid)
	if err != nil {
		s.log.Warn("bodyweight unavailable for import", "user_id", uid, "error", err)
	}

	logID, err := s.store.InsertImportLog(ctx, storage.ImportLog{UserID: uid, Source: "alpha", Status: storage.ImportRunning})
	if err != nil {
		s.log.Error("failed to log import start", "error", err)
	}

	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	result, err := s.alpha.Ingest(ctx, body, uid, alpha.NewCatalog(catalog), bodyweight)
	s.logImport(logID, uid, result, err, int(time.Since(start).Milliseconds()))
	if err != nil {
		s.log.Error("alpha import error", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	logs, err := s.store.QueryImportLogs(r.Context(), uid, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// logImport finalizes the import log row opened for this request. A zero
// logID means the row could not be created and a new one is inserted.
func (s *Server) logImport(logID int64, uid int, result *ingest.Result, importErr error, durationMs int) {
	entry := storage.ImportLog{
		UserID:     uid,
		Source:     "alpha",
		Status:     storage.ImportSuccess,
		DurationMs: &durationMs,
	}
	if result != nil {
		entry.RecordsReceived = result.RecordsReceived
		entry.RecordsInserted = result.RecordsInserted
		entry.SetsReceived = result.SetsReceived
		if meta, err := json.Marshal(map[string]int{"skipped": result.RecordsSkipped}); err == nil {
			raw := json.RawMessage(meta)
			entry.Metadata = &raw
		}
	}
	if importErr != nil {
		entry.Status = storage.ImportError
		msg := importErr.Error()
		entry.ErrorMessage = &msg
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	var err error
	if logID > 0 {
		err = s.store.UpdateImportLog(ctx, logID, entry)
	} else {
		_, err = s.store.InsertImportLog(ctx, entry)
	}
	if err != nil {
		s.log.Error("failed to log import", "source", entry.Source, "error", err)
	}
}

// contextWithTimeout returns a background context with a 5-second timeout for import logging.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd
}
