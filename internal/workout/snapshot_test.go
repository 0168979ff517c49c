package workout

import (
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
)

// TestSnapshotRoundTrip verifies an encoded session decodes unchanged.
func TestSnapshotRoundTrip(t *testing.T) {
	paused := t0.Add(time.Minute)
	elapsed := 20
	factor := 0.25
	s := &models.Session{
		ID: "s1", UserID: 1, Name: "Pull", StartedAt: t0, Version: 7, UpdatedAt: t0,
		Exercises: []models.ExerciseEntry{{
			ID: "e1", Name: "Row", PrimaryMuscle: "Espalda", SecondaryMuscles: []string{"Bíceps"},
			SecondaryFactor: &factor, RestSeconds: 90, TrackingMode: models.TrackReps,
			Sets: []models.Set{{ID: "x", Reps: 10, Weight: 50, Completed: true,
				Dropsets: []models.Dropset{{ID: "d", Reps: 6, Weight: 30, Completed: true}}}},
		}},
		CurrentExerciseID: "e1",
		RestTimer: &models.RestTimerState{
			InstanceID: "t1", DurationSeconds: 90, StartedAt: t0,
			PausedAt: &paused, PausedElapsedSeconds: &elapsed,
		},
	}
	data, err := EncodeSnapshot(s)
	if err != nil {
		t.Fatal(err)
	}
	got := DecodeSnapshot(data, 1, t0.Add(time.Hour))

	if got.ID != "s1" || got.Version != 7 || got.CurrentExerciseID != "e1" {
		t.Errorf("decoded = %+v", got)
	}
	ex := got.Exercises[0]
	if *ex.SecondaryFactor != 0.25 || ex.Sets[0].Dropsets[0].ID != "d" || ex.SecondaryMuscles[0] != "Bíceps" {
		t.Errorf("exercise = %+v", ex)
	}
	if got.RestTimer == nil || *got.RestTimer.PausedElapsedSeconds != 20 || !got.RestTimer.PausedAt.Equal(paused) {
		t.Errorf("rest timer = %+v", got.RestTimer)
	}
}

// TestDecodeSnapshotDegrades verifies malformed payloads never fail.
func TestDecodeSnapshotDegrades(t *testing.T) {
	now := t0
	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, s *models.Session)
	}{
		{
			name: "not json",
			data: "{{garbage",
			check: func(t *testing.T, s *models.Session) {
				if s.ID == "" || !s.StartedAt.Equal(now) || len(s.Exercises) != 0 {
					t.Errorf("session = %+v, want empty session", s)
				}
			},
		},
		{
			name: "wrong field types",
			data: `{"id": 12, "name": "Legs", "version": "x", "total_paused_ms": -50}`,
			check: func(t *testing.T, s *models.Session) {
				if s.ID == "" || s.Name != "Legs" || s.Version != 0 || s.TotalPausedMs != 0 {
					t.Errorf("session = %+v", s)
				}
			},
		},
		{
			name: "bad exercise dropped, missing ids assigned",
			data: `{"exercises": [{"name": "Row", "sets": [{"reps": 5, "weight": -3}]}, "oops", {"name": "Curl", "sets": "bad"}]}`,
			check: func(t *testing.T, s *models.Session) {
				if len(s.Exercises) != 1 {
					t.Fatalf("exercises = %+v", s.Exercises)
				}
				ex := s.Exercises[0]
				if ex.ID == "" || ex.Sets[0].ID == "" || ex.Sets[0].Weight != 0 || ex.TrackingMode != models.TrackReps {
					t.Errorf("exercise = %+v", ex)
				}
			},
		},
		{
			name: "dangling cursor and broken timer",
			data: `{"current_exercise_id": "gone", "current_set_index": 4, "rest_timer": {"duration_seconds": 60}}`,
			check: func(t *testing.T, s *models.Session) {
				if s.CurrentExerciseID != "" || s.CurrentSetIndex != 0 || s.RestTimer != nil {
					t.Errorf("session = %+v", s)
				}
			},
		},
		{
			name: "paused without timestamp",
			data: `{"is_paused": true, "rest_timer": {"instance_id": "t", "duration_seconds": -5, "started_at": "2026-03-02T18:00:00Z", "paused_at": "2026-03-02T18:00:10Z"}}`,
			check: func(t *testing.T, s *models.Session) {
				if s.PausedAt == nil || !s.PausedAt.Equal(now) {
					t.Errorf("paused_at = %v", s.PausedAt)
				}
				rt := s.RestTimer
				if rt == nil || rt.DurationSeconds != 0 || rt.PausedElapsedSeconds == nil || *rt.PausedElapsedSeconds != 0 {
					t.Errorf("rest timer = %+v", rt)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DecodeSnapshot([]byte(tt.data), 3, now)
			if s.UserID != 3 {
				t.Errorf("user = %d, want 3", s.UserID)
			}
			tt.check(t, s)
		})
	}
}
