package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/muscles"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/workout"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	q, err := historyQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			q.Limit = n
		}
	}

	history, err := s.store.ListHistory(r.Context(), uid, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	history = models.WithExercise(history, r.URL.Query().Get("exercise"))
	if history == nil {
		history = []models.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	all, err := storage.PersonalRecords(r.Context(), s.store, uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	rows := records.QueryRaw(all, q.Get("search"), q.Get("type"), q.Get("sort"))
	if rows == nil {
		rows = []records.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	snap, err := s.store.ListBestRecords(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResetSnapshot(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteAllBestRecords(r.Context(), uid); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	stats, err := storage.GetDataStats(r.Context(), s.store, uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMuscleStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseTimeRange(r, 28)
	if err != nil {
		s.writeError(w, r, &workout.ValidationError{Field: "start", Reason: err.Error()})
		return
	}
	history, err := s.store.ListHistory(r.Context(), uid, workout.HistoryQuery{Since: start, Until: end})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary := muscles.Summarize(history, muscles.ParseBucket(r.URL.Query().Get("bucket")), start, end)
	if summary.Periods == nil {
		summary.Periods = []muscles.Period{}
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	items, err := s.store.ListCatalog(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.CatalogItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func validateCatalogItem(item models.CatalogItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return &workout.ValidationError{Field: "name", Reason: "required"}
	}
	if item.RestSeconds < 0 {
		return &workout.ValidationError{Field: "rest_seconds", Reason: "must not be negative"}
	}
	if item.TrackingMode != "" && item.TrackingMode != models.TrackReps && item.TrackingMode != models.TrackTime {
		return &workout.ValidationError{Field: "tracking_mode", Reason: "must be reps or time"}
	}
	return nil
}

func (s *Server) handleCreateCatalogItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var item models.CatalogItem
	if err := decodeBody(r, &item); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := validateCatalogItem(item); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.store.CreateCatalogItem(r.Context(), uid, item)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateCatalogItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var item models.CatalogItem
	if err := decodeBody(r, &item); err != nil {
		s.writeError(w, r, err)
		return
	}
	item.ID = chi.URLParam(r, "id")
	if err := validateCatalogItem(item); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.store.UpdateCatalogItem(r.Context(), uid, item)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	routines, err := s.store.ListRoutines(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if routines == nil {
		routines = []models.Routine{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var routine models.Routine
	if err := decodeBody(r, &routine); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(routine.Name) == "" {
		s.writeError(w, r, &workout.ValidationError{Field: "name", Reason: "required"})
		return
	}
	created, err := s.store.CreateRoutine(r.Context(), uid, routine)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetBodyweight(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	kg, err := s.store.Bodyweight(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"bodyweight_kg": kg})
}

func (s *Server) handleSetBodyweight(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req struct {
		BodyweightKg float64 `json:"bodyweight_kg"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.BodyweightKg < 0 || req.BodyweightKg > 500 {
		s.writeError(w, r, &workout.ValidationError{Field: "bodyweight_kg", Reason: "out of range"})
		return
	}
	if err := s.store.SetBodyweight(r.Context(), uid, req.BodyweightKg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"bodyweight_kg": req.BodyweightKg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseDate(s string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err = time.ParseInLocation("2006-01-02", s, time.Local)
	return t, true, err
}

// parseTimeRange reads start/end query parameters. Without start the range
// is the last defaultDays days. A date-only end covers that whole day.
func parseTimeRange(r *http.Request, defaultDays int) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	end = time.Now()
	if endStr != "" {
		var dateOnly bool
		end, dateOnly, err = parseDate(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if dateOnly {
			end = end.AddDate(0, 0, 1)
		}
	}

	if startStr == "" {
		return end.AddDate(0, 0, -defaultDays), end, nil
	}
	start, _, err = parseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// historyQuery is like parseTimeRange but leaves missing bounds open.
func historyQuery(r *http.Request) (workout.HistoryQuery, error) {
	var q workout.HistoryQuery
	if v := r.URL.Query().Get("start"); v != "" {
		t, _, err := parseDate(v)
		if err != nil {
			return q, &workout.ValidationError{Field: "start", Reason: err.Error()}
		}
		q.Since = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, dateOnly, err := parseDate(v)
		if err != nil {
			return q, &workout.ValidationError{Field: "end", Reason: err.Error()}
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		q.Until = t
	}
	return q, nil
}
