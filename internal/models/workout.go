package models

import "time"

// TrackingMode tells how a set's reps field is interpreted.
type TrackingMode string

const (
	TrackReps TrackingMode = "reps"
	// TrackTime stores seconds held in the reps field.
	TrackTime TrackingMode = "time"
)

// Dropset is a sub-series performed right after its parent set at reduced weight.
type Dropset struct {
	ID        string  `json:"id"`
	Reps      int     `json:"reps"`
	Weight    float64 `json:"weight"`
	Completed bool    `json:"completed"`
}

// Set is a single series of an exercise.
type Set struct {
	ID        string    `json:"id"`
	Reps      int       `json:"reps"`
	Weight    float64   `json:"weight"`
	Completed bool      `json:"completed"`
	IsWarmup  bool      `json:"is_warmup"`
	Dropsets  []Dropset `json:"dropsets,omitempty"`
}

// Counts reports whether the set contributes to volume and records.
func (s Set) Counts() bool {
	return s.Completed && !s.IsWarmup
}

// ExerciseEntry is one exercise inside a session or history record.
type ExerciseEntry struct {
	ID                 string       `json:"id"`
	CatalogID          string       `json:"catalog_id,omitempty"`
	Name               string       `json:"name"`
	PrimaryMuscle      string       `json:"primary_muscle"`
	SecondaryMuscles   []string     `json:"secondary_muscles,omitempty"`
	SecondaryFactor    *float64     `json:"secondary_factor,omitempty"`
	RestSeconds        int          `json:"rest_seconds"`
	TrackingMode       TrackingMode `json:"tracking_mode"`
	IncludesBodyweight bool         `json:"includes_bodyweight,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	Sets               []Set        `json:"sets"`
}

// Mode returns the tracking mode, defaulting to reps.
func (e ExerciseEntry) Mode() TrackingMode {
	if e.TrackingMode == TrackTime {
		return TrackTime
	}
	return TrackReps
}

// CompletedSeries counts completed working sets.
func (e ExerciseEntry) CompletedSeries() int {
	n := 0
	for _, s := range e.Sets {
		if s.Counts() {
			n++
		}
	}
	return n
}

// RestTimerState is the persisted form of one rest countdown.
// A paused timer carries both PausedAt and PausedElapsedSeconds.
type RestTimerState struct {
	InstanceID           string     `json:"instance_id"`
	DurationSeconds      int        `json:"duration_seconds"`
	StartedAt            time.Time  `json:"started_at"`
	PausedAt             *time.Time `json:"paused_at,omitempty"`
	PausedElapsedSeconds *int       `json:"paused_elapsed_seconds,omitempty"`
}

// Session is the in-progress workout. It is also the snapshot payload
// written to the active-session store after every mutation.
type Session struct {
	ID                string          `json:"id"`
	UserID            int             `json:"user_id"`
	RoutineID         *string         `json:"routine_id,omitempty"`
	Name              string          `json:"name"`
	StartedAt         time.Time       `json:"started_at"`
	OverrideDate      *time.Time      `json:"override_date,omitempty"`
	IsPaused          bool            `json:"is_paused"`
	PausedAt          *time.Time      `json:"paused_at,omitempty"`
	TotalPausedMs     int64           `json:"total_paused_ms"`
	Exercises         []ExerciseEntry `json:"exercises"`
	CurrentExerciseID string          `json:"current_exercise_id,omitempty"`
	CurrentSetIndex   int             `json:"current_set_index"`
	RestTimer         *RestTimerState `json:"rest_timer,omitempty"`
	Version           int64           `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Progress counts recorded and completed sets of a session.
type Progress struct {
	TotalSets     int  `json:"total_sets"`
	CompletedSets int  `json:"completed_sets"`
	Partial       bool `json:"partial"`
}

// Progress reports set completion. A session with no sets is never partial.
func (s Session) Progress() Progress {
	var p Progress
	for _, ex := range s.Exercises {
		for _, set := range ex.Sets {
			p.TotalSets++
			if set.Completed {
				p.CompletedSets++
			}
		}
	}
	p.Partial = p.TotalSets > 0 && p.CompletedSets < p.TotalSets
	return p
}

// Exercise returns the entry with the given id.
func (s *Session) Exercise(id string) (*ExerciseEntry, bool) {
	for i := range s.Exercises {
		if s.Exercises[i].ID == id {
			return &s.Exercises[i], true
		}
	}
	return nil, false
}

// HistoryRecord is a finished (or imported) session.
type HistoryRecord struct {
	ID              string          `json:"id"`
	UserID          int             `json:"user_id"`
	RoutineID       *string         `json:"routine_id,omitempty"`
	Name            string          `json:"name"`
	Date            time.Time       `json:"date"`
	DurationMinutes int             `json:"duration_minutes"`
	TotalVolume     float64         `json:"total_volume"`
	BodyweightKg    float64         `json:"bodyweight_kg,omitempty"`
	Source          string          `json:"source"`
	Exercises       []ExerciseEntry `json:"exercises"`
}

// History sources.
const (
	SourceSession = "session"
	SourceAlpha   = "alpha"
)

// BestRecord is one entry of the persisted best-record snapshot.
type BestRecord struct {
	Weight float64   `json:"weight"`
	Reps   int       `json:"reps"`
	Date   time.Time `json:"date"`
}

// BestSnapshot maps exercise display name to its persisted best.
type BestSnapshot map[string]BestRecord
