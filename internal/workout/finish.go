package workout

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/records"
)

// FinishResult is what Finish produced.
type FinishResult struct {
	Record       models.HistoryRecord  `json:"record"`
	Improvements []records.Improvement `json:"improvements"`
	// Surfaced is the notification kept for display: the last improvement.
	Surfaced *records.Improvement `json:"surfaced,omitempty"`
}

// Volume sums weight times reps over completed working sets and their
// completed dropsets, whatever the tracking mode. Bodyweight is added to the
// load of exercises that include it.
func Volume(exercises []models.ExerciseEntry, bodyweightKg float64) float64 {
	var total float64
	for _, ex := range exercises {
		extra := 0.0
		if ex.IncludesBodyweight && bodyweightKg > 0 {
			extra = bodyweightKg
		}
		for _, set := range ex.Sets {
			if !set.Counts() {
				continue
			}
			total += (set.Weight + extra) * float64(set.Reps)
			for _, d := range set.Dropsets {
				if d.Completed {
					total += (d.Weight + extra) * float64(d.Reps)
				}
			}
		}
	}
	return math.Round(total*100) / 100
}

// durationMinutes is the nominal duration for backdated sessions, else the
// active time rounded to minutes and at least one.
func (r *Runtime) durationMinutes(s *models.Session, now time.Time) int {
	if s.OverrideDate != nil {
		return r.settings.NominalMinutes
	}
	return max(1, int(math.Round(activeDuration(s, now).Minutes())))
}

// Finish converts the session into a history record, clears the active
// session and updates the best-record snapshot with any improvements.
func (r *Runtime) Finish(ctx context.Context) (FinishResult, error) {
	s, err := r.active()
	if err != nil {
		return FinishResult{}, err
	}
	if err := checkTransition(r.status, StatusFinished); err != nil {
		return FinishResult{}, err
	}

	history, err := r.store.ListHistory(ctx, r.userID, HistoryQuery{})
	if err != nil {
		return FinishResult{}, &PersistenceError{Op: "finish", Err: fmt.Errorf("loading history: %w", err)}
	}
	// A retried finish may already have appended this session.
	prior := make([]models.HistoryRecord, 0, len(history))
	for _, h := range history {
		if h.ID != s.ID {
			prior = append(prior, h)
		}
	}
	snapshot, err := r.store.ListBestRecords(ctx, r.userID)
	if err != nil {
		return FinishResult{}, &PersistenceError{Op: "finish", Err: fmt.Errorf("loading best records: %w", err)}
	}

	bodyweight := 0.0
	if r.bodyweight != nil {
		bodyweight = r.bodyweight(ctx, r.userID)
	}

	now := r.now()
	rec := models.HistoryRecord{
		ID:              s.ID,
		UserID:          r.userID,
		RoutineID:       s.RoutineID,
		Name:            s.Name,
		Date:            s.StartedAt,
		DurationMinutes: r.durationMinutes(s, now),
		TotalVolume:     Volume(s.Exercises, bodyweight),
		BodyweightKg:    bodyweight,
		Source:          models.SourceSession,
		Exercises:       cloneExercises(s.Exercises),
	}

	// The record shares the session id, so appending again after a failed
	// clear is a no-op.
	if err := r.store.AppendHistoryRecord(ctx, rec); err != nil {
		return FinishResult{}, &PersistenceError{Op: "finish", Err: fmt.Errorf("appending history: %w", err)}
	}
	if err := r.store.DeleteActiveSession(ctx, r.userID); err != nil {
		return FinishResult{}, &PersistenceError{Op: "finish", Err: fmt.Errorf("clearing active session: %w", err)}
	}
	r.session = nil
	r.status = StatusFinished

	res := FinishResult{Record: rec, Improvements: records.Improvements(prior, snapshot, rec)}
	for name, best := range records.SnapshotUpdates(snapshot, rec) {
		if err := r.store.UpsertBestRecord(ctx, r.userID, name, best); err != nil {
			// History is authoritative; the snapshot is rebuilt from it on demand.
			r.logger.Warn("best record not updated", "user_id", r.userID, "exercise", name, "error", err)
		}
	}
	for i := range res.Improvements {
		imp := res.Improvements[i]
		r.notifier.Notify(r.userID, Event{Type: EventRecordImproved, At: now, Improvement: &imp})
		res.Surfaced = &imp
	}

	r.logger.Info("session finished",
		"user_id", r.userID,
		"record_id", rec.ID,
		"duration_min", rec.DurationMinutes,
		"volume", rec.TotalVolume,
		"improvements", len(res.Improvements),
	)
	r.notifier.Notify(r.userID, Event{Type: EventSessionFinished, At: now})
	return res, nil
}
