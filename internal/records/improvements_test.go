package records

import (
	"testing"

	"github.com/claude/liftlog/internal/models"
)

// TestImprovementsBaselineNotReported verifies a first performance is silent.
func TestImprovementsBaselineNotReported(t *testing.T) {
	rec := session(d2, exercise("Deadlift", models.TrackReps, done(5, 140)))
	if got := Improvements(nil, nil, rec); len(got) != 0 {
		t.Errorf("Improvements = %+v, want none", got)
	}
}

// TestImprovementsMetricPriority checks e1RM wins over reps and reps is
// reported when the estimate did not move.
func TestImprovementsMetricPriority(t *testing.T) {
	prior := []models.HistoryRecord{
		session(d1,
			exercise("Bench Press", models.TrackReps, done(5, 100)),
			exercise("Dips", models.TrackReps, done(12, 0)),
			exercise("Plank", models.TrackTime, done(60, 0)),
		),
	}
	rec := session(d2,
		exercise("Bench Press", models.TrackReps, done(5, 105), done(6, 100)),
		exercise("dips", models.TrackReps, done(15, 0)),
		exercise("Plank", models.TrackTime, done(75, 0)),
	)

	got := Improvements(prior, nil, rec)
	if len(got) != 3 {
		t.Fatalf("Improvements = %+v, want 3", got)
	}
	if got[0].Metric != MetricE1RM || got[0].Current != E1RM(105, 5) || got[0].Previous != 116.5 {
		t.Errorf("bench = %+v", got[0])
	}
	if got[1].Metric != MetricReps || got[1].Previous != 12 || got[1].Current != 15 {
		t.Errorf("dips = %+v", got[1])
	}
	if got[2].Metric != MetricTime || got[2].Current != 75 {
		t.Errorf("plank = %+v", got[2])
	}
	for _, imp := range got {
		if !imp.Date.Equal(d2) {
			t.Errorf("%s date = %v, want %v", imp.Key, imp.Date, d2)
		}
	}
}

// TestImprovementsUsesSnapshot verifies snapshot bests count as prior records.
func TestImprovementsUsesSnapshot(t *testing.T) {
	snapshot := models.BestSnapshot{"Pull Up": {Weight: 20, Reps: 10, Date: d1}}
	equal := session(d2, exercise("Pull Up", models.TrackReps, done(10, 20)))
	if got := Improvements(nil, snapshot, equal); len(got) != 0 {
		t.Errorf("matching the snapshot reported %+v", got)
	}
	better := session(d2, exercise("Pull Up", models.TrackReps, done(10, 24)))
	got := Improvements(nil, snapshot, better)
	if len(got) != 1 || got[0].Previous != 26.5 || got[0].Current != 32 {
		t.Errorf("Improvements = %+v", got)
	}
}

// TestImprovementsTimeSnapshot verifies a timed snapshot entry is compared
// as seconds held.
func TestImprovementsTimeSnapshot(t *testing.T) {
	snapshot := models.BestSnapshot{"Plank": {Reps: 90, Date: d1}}
	longer := session(d2, exercise("Plank", models.TrackTime, done(100, 0)))
	got := Improvements(nil, snapshot, longer)
	if len(got) != 1 || got[0].Metric != MetricTime || got[0].Previous != 90 || got[0].Current != 100 {
		t.Errorf("Improvements = %+v", got)
	}
}

// TestSnapshotUpdates checks the snapshot keeps its display name and only
// improving entries are returned.
func TestSnapshotUpdates(t *testing.T) {
	snapshot := models.BestSnapshot{
		"Sentadilla": {Weight: 100, Reps: 5, Date: d1},
		"Press":      {Weight: 60, Reps: 5, Date: d1},
	}
	rec := session(d2,
		exercise("sentadílla", models.TrackReps, done(5, 110), done(8, 90)),
		exercise("Press", models.TrackReps, done(5, 50)),
		exercise("Plank", models.TrackTime, done(45, 0)),
		exercise("Row", models.TrackReps, models.Set{Reps: 10, Weight: 60}),
	)

	got := SnapshotUpdates(snapshot, rec)
	if len(got) != 2 {
		t.Fatalf("updates = %+v, want Sentadilla and Plank", got)
	}
	sq, ok := got["Sentadilla"]
	if !ok {
		t.Fatalf("update not keyed by snapshot name: %+v", got)
	}
	// 90x8 estimates 114, 110x5 estimates 128.5.
	if sq.Weight != 110 || sq.Reps != 5 || !sq.Date.Equal(d2) {
		t.Errorf("Sentadilla = %+v", sq)
	}
	if p := got["Plank"]; p.Reps != 45 || p.Weight != 0 {
		t.Errorf("Plank = %+v", p)
	}
}
