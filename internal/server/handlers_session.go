package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/timer"
	"github.com/claude/liftlog/internal/workout"
)

type restView struct {
	models.RestTimerState
	Elapsed   int  `json:"elapsed"`
	Remaining int  `json:"remaining"`
	Paused    bool `json:"paused"`
}

type sessionView struct {
	Status         workout.Status   `json:"status"`
	Session        *models.Session  `json:"session"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
	Progress       *models.Progress `json:"progress,omitempty"`
	Rest           *restView        `json:"rest,omitempty"`
}

func viewOf(rt *workout.Runtime, now time.Time) sessionView {
	v := sessionView{Status: rt.Status(), Session: rt.Session()}
	if v.Session == nil {
		return v
	}
	v.ElapsedSeconds = int(rt.ElapsedSession(now).Seconds())
	p := v.Session.Progress()
	v.Progress = &p
	if st, ok := rt.RestTimer(); ok {
		elapsed, remaining := timer.Compute(st, now)
		v.Rest = &restView{RestTimerState: st, Elapsed: elapsed, Remaining: remaining, Paused: timer.IsPaused(st)}
	}
	return v
}

// mutate runs op against the caller's runtime and responds with the
// resulting session view.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, rt *workout.Runtime) error) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var view sessionView
	err := s.sessions.Do(r.Context(), uid, func(rt *workout.Runtime) error {
		if err := op(r.Context(), rt); err != nil {
			return err
		}
		view = viewOf(rt, time.Now())
		return nil
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &workout.ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(context.Context, *workout.Runtime) error { return nil })
}

type startRequest struct {
	Name      string `json:"name"`
	RoutineID string `json:"routine_id"`
	// Date backdates the session (YYYY-MM-DD).
	Date string `json:"date"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	src := workout.StartSource{Name: req.Name}
	if req.RoutineID != "" {
		routine, err := s.store.GetRoutine(r.Context(), req.RoutineID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		src.Routine = &routine
	}

	var override *time.Time
	if req.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", req.Date, time.Local)
		if err != nil {
			s.writeError(w, r, &workout.ValidationError{Field: "date", Reason: "want YYYY-MM-DD"})
			return
		}
		override = &d
	}

	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error {
		return rt.Start(ctx, src, override)
	})
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.Cancel(ctx) })
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.Pause(ctx) })
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.Resume(ctx) })
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var res workout.FinishResult
	err := s.sessions.Do(r.Context(), uid, func(rt *workout.Runtime) error {
		var err error
		res, err = rt.Finish(r.Context())
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type addExerciseRequest struct {
	CatalogID string `json:"catalog_id"`
	// Item is an ad-hoc definition used when CatalogID is empty.
	Item *models.CatalogItem `json:"item"`
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	var req addExerciseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var item models.CatalogItem
	switch {
	case req.CatalogID != "":
		found, err := s.store.GetCatalogItem(r.Context(), req.CatalogID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		item = found
	case req.Item != nil:
		item = *req.Item
	default:
		s.writeError(w, r, &workout.ValidationError{Field: "catalog_id", Reason: "catalog_id or item required"})
		return
	}

	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error {
		_, err := rt.AddExercise(ctx, item)
		return err
	})
}

func (s *Server) handleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.RemoveExercise(ctx, id) })
}

func (s *Server) handleUpdateSets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sets []models.Set `json:"sets"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.UpdateSets(ctx, id, req.Sets) })
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SetIndex int `json:"set_index"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error {
		return rt.UpdatePosition(ctx, id, req.SetIndex)
	})
}

func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.UpdateNotes(ctx, id, req.Notes) })
}

func (s *Server) handleUpdateRest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.UpdateRest(ctx, id, req.Seconds) })
}

func (s *Server) handleStartRest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds int `json:"seconds"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error {
		_, err := rt.StartRest(ctx, req.Seconds)
		return err
	})
}

func (s *Server) handleSkipRest(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error { return rt.SkipRest(ctx) })
}

func (s *Server) handlePauseRest(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error {
		_, err := rt.PauseRest(ctx)
		return err
	})
}

func (s *Server) handleResumeRest(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error {
		_, err := rt.ResumeRest(ctx)
		return err
	})
}

func (s *Server) handleExtendRest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds *float64 `json:"seconds"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Seconds == nil {
		s.writeError(w, r, &workout.ValidationError{Field: "seconds", Reason: "required"})
		return
	}
	s.mutate(w, r, func(ctx context.Context, rt *workout.Runtime) error {
		_, err := rt.ExtendRest(ctx, *req.Seconds)
		return err
	})
}

// handleSessionEvents streams the caller's session events as server-sent
// events until the client disconnects.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	// Load the runtime so a persisted countdown gets its watcher.
	if _, _, err := s.sessions.Snapshot(r.Context(), uid); err != nil {
		s.writeError(w, r, err)
		return
	}

	events, cancel := s.sessions.Subscribe(uid)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn("encoding event", "type", ev.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
