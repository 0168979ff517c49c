package workout

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/models"
)

// EncodeSnapshot serializes the full session for the active-session store.
func EncodeSnapshot(s *models.Session) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot rebuilds a session from a stored payload. Every field is
// optional: fields that fail to decode keep their zero value, malformed
// exercises are dropped, and missing ids are generated. It never fails; a
// payload that is not a JSON object yields an empty session.
func DecodeSnapshot(data []byte, userID int, now time.Time) *models.Session {
	s := &models.Session{UserID: userID}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		fields = nil
	}
	field := func(name string, dst any) {
		if raw, ok := fields[name]; ok {
			_ = json.Unmarshal(raw, dst)
		}
	}

	field("id", &s.ID)
	field("routine_id", &s.RoutineID)
	field("name", &s.Name)
	field("started_at", &s.StartedAt)
	field("override_date", &s.OverrideDate)
	field("is_paused", &s.IsPaused)
	field("paused_at", &s.PausedAt)
	field("total_paused_ms", &s.TotalPausedMs)
	field("current_exercise_id", &s.CurrentExerciseID)
	field("current_set_index", &s.CurrentSetIndex)
	field("rest_timer", &s.RestTimer)
	field("version", &s.Version)
	field("updated_at", &s.UpdatedAt)

	var rawExercises []json.RawMessage
	field("exercises", &rawExercises)
	for _, raw := range rawExercises {
		var ex models.ExerciseEntry
		if err := json.Unmarshal(raw, &ex); err != nil {
			continue
		}
		s.Exercises = append(s.Exercises, ex)
	}

	sanitize(s, now)
	return s
}

// sanitize repairs a decoded session so every invariant the runtime relies
// on holds.
func sanitize(s *models.Session, now time.Time) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	if s.TotalPausedMs < 0 {
		s.TotalPausedMs = 0
	}
	if s.IsPaused && s.PausedAt == nil {
		s.PausedAt = &now
	}
	if !s.IsPaused {
		s.PausedAt = nil
	}
	if s.Exercises == nil {
		s.Exercises = []models.ExerciseEntry{}
	}
	for i := range s.Exercises {
		ex := &s.Exercises[i]
		if ex.ID == "" {
			ex.ID = uuid.NewString()
		}
		ex.TrackingMode = ex.Mode()
		if ex.RestSeconds < 0 {
			ex.RestSeconds = 0
		}
		if ex.Sets == nil {
			ex.Sets = []models.Set{}
		}
		assignSetIDs(ex.Sets)
		for j := range ex.Sets {
			set := &ex.Sets[j]
			set.Reps = max(0, set.Reps)
			if math.IsNaN(set.Weight) || math.IsInf(set.Weight, 0) || set.Weight < 0 {
				set.Weight = 0
			}
		}
	}
	if _, ok := s.Exercise(s.CurrentExerciseID); !ok {
		s.CurrentExerciseID = ""
		s.CurrentSetIndex = 0
	}
	if s.CurrentSetIndex < 0 {
		s.CurrentSetIndex = 0
	}
	if t := s.RestTimer; t != nil {
		if t.InstanceID == "" {
			t.InstanceID = uuid.NewString()
		}
		if t.StartedAt.IsZero() {
			s.RestTimer = nil
		} else {
			t.DurationSeconds = max(0, t.DurationSeconds)
			if t.PausedAt != nil && t.PausedElapsedSeconds == nil {
				zero := 0
				t.PausedElapsedSeconds = &zero
			}
		}
	}
}

// assignSetIDs gives every set and dropset lacking an id a fresh one.
func assignSetIDs(sets []models.Set) {
	for i := range sets {
		if sets[i].ID == "" {
			sets[i].ID = uuid.NewString()
		}
		for j := range sets[i].Dropsets {
			if sets[i].Dropsets[j].ID == "" {
				sets[i].Dropsets[j].ID = uuid.NewString()
			}
		}
	}
}

// cloneSession deep-copies s so callers cannot mutate runtime state.
func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Exercises = cloneExercises(s.Exercises)
	if s.RestTimer != nil {
		t := *s.RestTimer
		if t.PausedAt != nil {
			at := *t.PausedAt
			t.PausedAt = &at
		}
		if t.PausedElapsedSeconds != nil {
			e := *t.PausedElapsedSeconds
			t.PausedElapsedSeconds = &e
		}
		c.RestTimer = &t
	}
	return &c
}

func cloneExercises(in []models.ExerciseEntry) []models.ExerciseEntry {
	out := make([]models.ExerciseEntry, len(in))
	for i, ex := range in {
		ex.SecondaryMuscles = append([]string(nil), ex.SecondaryMuscles...)
		if ex.SecondaryFactor != nil {
			f := *ex.SecondaryFactor
			ex.SecondaryFactor = &f
		}
		sets := make([]models.Set, len(ex.Sets))
		for j, set := range ex.Sets {
			set.Dropsets = append([]models.Dropset(nil), set.Dropsets...)
			sets[j] = set
		}
		ex.Sets = sets
		out[i] = ex
	}
	return out
}
