package workout

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/timer"
)

var t0 = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store *memStore
	clock *fakeClock
	sink  *recorder
	rt    *Runtime
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), clock: &fakeClock{t: t0}, sink: &recorder{}}
	all := append([]Option{WithClock(f.clock.Now), WithNotifier(f.sink)}, opts...)
	f.rt = NewRuntime(1, f.store, discardLogger(), all...)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.rt.Start(context.Background(), StartSource{Name: "Push"}, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func (f *fixture) add(t *testing.T, item models.CatalogItem) models.ExerciseEntry {
	t.Helper()
	ex, err := f.rt.AddExercise(context.Background(), item)
	if err != nil {
		t.Fatalf("AddExercise(%q): %v", item.Name, err)
	}
	return ex
}

// TestTransitionTable verifies the allowed lifecycle edges.
func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNotStarted, StatusActive, true},
		{StatusNotStarted, StatusPaused, false},
		{StatusNotStarted, StatusFinished, false},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusFinished, true},
		{StatusActive, StatusCancelled, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusFinished, true},
		{StatusPaused, StatusCancelled, true},
		{StatusFinished, StatusActive, true},
		{StatusFinished, StatusPaused, false},
		{StatusFinished, StatusCancelled, false},
		{StatusCancelled, StatusActive, true},
		{StatusCancelled, StatusFinished, false},
	}
	for _, tt := range tests {
		if got := canTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if err := checkTransition(StatusFinished, StatusPaused); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("checkTransition error = %v, want ErrInvalidTransition", err)
	}
}

// TestMissingContext verifies operations without a user or store fail
// without mutating anything.
func TestMissingContext(t *testing.T) {
	store := newMemStore()
	noUser := NewRuntime(0, store, discardLogger())
	if err := noUser.Start(context.Background(), StartSource{}, nil); !errors.Is(err, ErrMissingContext) {
		t.Fatalf("Start without user = %v, want ErrMissingContext", err)
	}
	if noUser.Status() != StatusNotStarted || noUser.Session() != nil {
		t.Error("failed Start mutated the runtime")
	}

	noStore := NewRuntime(1, nil, discardLogger())
	if _, err := noStore.AddExercise(context.Background(), models.CatalogItem{Name: "Row"}); !errors.Is(err, ErrMissingContext) {
		t.Errorf("AddExercise without store = %v, want ErrMissingContext", err)
	}
	if len(store.active) != 0 {
		t.Error("store written without context")
	}
}

// TestStartPersistsSnapshot verifies Start creates and persists a session.
func TestStartPersistsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	if f.rt.Status() != StatusActive {
		t.Fatalf("status = %s, want active", f.rt.Status())
	}
	s := f.rt.Session()
	if s.Version != 1 || !s.StartedAt.Equal(t0) || s.Name != "Push" {
		t.Errorf("session = %+v", s)
	}
	if len(s.Exercises) != 0 {
		t.Errorf("free session has %d exercises", len(s.Exercises))
	}
	if _, ok := f.store.active[1]; !ok {
		t.Error("snapshot not persisted")
	}
	if err := f.rt.Start(context.Background(), StartSource{}, nil); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start = %v, want ErrSessionActive", err)
	}
}

// TestStartBackdated verifies an override date moves the start to 09:00.
func TestStartBackdated(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 2, 20, 21, 30, 0, 0, time.UTC)
	if err := f.rt.Start(context.Background(), StartSource{}, &day); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, 2, 20, 9, 0, 0, 0, time.UTC)
	if s := f.rt.Session(); !s.StartedAt.Equal(want) || s.OverrideDate == nil {
		t.Errorf("StartedAt = %v, want %v", s.StartedAt, want)
	}
}

// TestStartFromRoutinePrefill verifies routine exercises copy the sets of
// their latest performance and fall back to routine targets.
func TestStartFromRoutinePrefill(t *testing.T) {
	f := newFixture(t)
	f.store.history = []models.HistoryRecord{
		{UserID: 1, Date: t0.Add(-14 * 24 * time.Hour), Exercises: []models.ExerciseEntry{
			{Name: "Press Banca", Sets: []models.Set{{ID: "old", Reps: 8, Weight: 60, Completed: true}}},
		}},
		{UserID: 1, Date: t0.Add(-7 * 24 * time.Hour), Exercises: []models.ExerciseEntry{
			{Name: "press banca", Sets: []models.Set{
				{ID: "a", Reps: 6, Weight: 70, Completed: true},
				{ID: "b", Reps: 5, Weight: 72.5, Completed: true, Dropsets: []models.Dropset{{Reps: 8, Weight: 50, Completed: true}}},
			}},
		}},
	}
	routine := &models.Routine{ID: "r1", Name: "Push Day", Exercises: []models.RoutineExercise{
		{Exercise: models.CatalogItem{ID: "c1", Name: "Press Banca", PrimaryMuscle: "Pecho"}, Sets: 3, Reps: 10, Weight: 50},
		{Exercise: models.CatalogItem{ID: "c2", Name: "Fondos"}, Sets: 2, Reps: 12},
	}}
	if err := f.rt.Start(context.Background(), StartSource{Routine: routine}, nil); err != nil {
		t.Fatal(err)
	}

	s := f.rt.Session()
	if s.Name != "Push Day" || s.RoutineID == nil || *s.RoutineID != "r1" {
		t.Errorf("routine identity = %q / %v", s.Name, s.RoutineID)
	}
	if len(s.Exercises) != 2 || s.CurrentExerciseID != s.Exercises[0].ID {
		t.Fatalf("exercises = %+v", s.Exercises)
	}

	bench := s.Exercises[0]
	if len(bench.Sets) != 2 || bench.Sets[0].Weight != 70 || bench.Sets[1].Reps != 5 {
		t.Errorf("bench sets = %+v, want copy of latest performance", bench.Sets)
	}
	for _, set := range bench.Sets {
		if set.Completed || set.ID == "a" || set.ID == "b" || set.ID == "" {
			t.Errorf("prefilled set %+v must be fresh and not completed", set)
		}
	}
	if d := bench.Sets[1].Dropsets; len(d) != 1 || d[0].Completed || d[0].ID == "" {
		t.Errorf("dropsets = %+v", d)
	}

	dips := s.Exercises[1]
	if len(dips.Sets) != 2 || dips.Sets[0].Reps != 12 || dips.RestSeconds != 90 {
		t.Errorf("dips = %+v, want routine targets", dips)
	}
}

// TestAddExerciseValidation covers empty, too long and duplicate names.
func TestAddExerciseValidation(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.add(t, models.CatalogItem{Name: "Sentadilla"})

	tests := []struct {
		name string
		item models.CatalogItem
	}{
		{"empty", models.CatalogItem{Name: "  "}},
		{"too long", models.CatalogItem{Name: strings.Repeat("x", 101)}},
		{"duplicate ignoring accents", models.CatalogItem{Name: "SENTADÍLLA"}},
		{"negative rest", models.CatalogItem{Name: "Row", RestSeconds: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rt.AddExercise(context.Background(), tt.item)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
		})
	}
	if n := len(f.rt.Session().Exercises); n != 1 {
		t.Errorf("exercises = %d after rejected adds, want 1", n)
	}
}

// TestAddExerciseDefaults verifies default sets and cursor movement.
func TestAddExerciseDefaults(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.add(t, models.CatalogItem{Name: "Curl"})
	ex := f.add(t, models.CatalogItem{Name: "Plank", TrackingMode: models.TrackTime, RestSeconds: 45})

	s := f.rt.Session()
	if s.CurrentExerciseID != ex.ID || s.CurrentSetIndex != 0 {
		t.Errorf("cursor = %s/%d, want %s/0", s.CurrentExerciseID, s.CurrentSetIndex, ex.ID)
	}
	if len(ex.Sets) != 3 || ex.Sets[0].Reps != 10 || ex.RestSeconds != 45 {
		t.Errorf("entry = %+v", ex)
	}
	if s.Version != 3 {
		t.Errorf("version = %d, want 3", s.Version)
	}
}

// TestUpdateSetsAssignsIDs verifies replacement, id assignment and validation.
func TestUpdateSetsAssignsIDs(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ex := f.add(t, models.CatalogItem{Name: "Row"})
	ctx := context.Background()

	sets := []models.Set{
		{Reps: 10, Weight: 60, Completed: true, Dropsets: []models.Dropset{{Reps: 6, Weight: 40}}},
		{ID: "keep", Reps: 8, Weight: 65},
	}
	if err := f.rt.UpdateSets(ctx, ex.ID, sets); err != nil {
		t.Fatal(err)
	}
	got, _ := f.rt.Session().Exercise(ex.ID)
	if len(got.Sets) != 2 || got.Sets[0].ID == "" || got.Sets[1].ID != "keep" || got.Sets[0].Dropsets[0].ID == "" {
		t.Errorf("sets = %+v", got.Sets)
	}
	if sets[0].ID != "" {
		t.Error("caller's slice was modified")
	}

	bad := [][]models.Set{
		{{Reps: -1}},
		{{Reps: 5, Weight: math.NaN()}},
		{{Reps: 5, Weight: -10}},
		{{Reps: 5, Dropsets: []models.Dropset{{Reps: -2}}}},
	}
	for _, b := range bad {
		var ve *ValidationError
		if err := f.rt.UpdateSets(ctx, ex.ID, b); !errors.As(err, &ve) {
			t.Errorf("UpdateSets(%+v) = %v, want *ValidationError", b, err)
		}
	}
	if err := f.rt.UpdateSets(ctx, "missing", nil); !errors.Is(err, ErrExerciseNotFound) {
		t.Errorf("unknown exercise = %v, want ErrExerciseNotFound", err)
	}
}

// TestUpdateFields covers position, notes and rest updates.
func TestUpdateFields(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	a := f.add(t, models.CatalogItem{Name: "A"})
	f.add(t, models.CatalogItem{Name: "B"})
	ctx := context.Background()

	if err := f.rt.UpdatePosition(ctx, a.ID, 2); err != nil {
		t.Fatal(err)
	}
	var ve *ValidationError
	if err := f.rt.UpdatePosition(ctx, a.ID, 3); !errors.As(err, &ve) {
		t.Errorf("out of range position = %v", err)
	}
	if err := f.rt.UpdateNotes(ctx, a.ID, "grip wider"); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.UpdateRest(ctx, a.ID, 120); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.UpdateRest(ctx, a.ID, -5); !errors.As(err, &ve) {
		t.Errorf("negative rest = %v", err)
	}

	s := f.rt.Session()
	got, _ := s.Exercise(a.ID)
	if s.CurrentExerciseID != a.ID || s.CurrentSetIndex != 2 || got.Notes != "grip wider" || got.RestSeconds != 120 {
		t.Errorf("session = %+v", s)
	}
}

// TestRemoveExerciseMovesCursor verifies the cursor follows a removal.
func TestRemoveExerciseMovesCursor(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	a := f.add(t, models.CatalogItem{Name: "A"})
	b := f.add(t, models.CatalogItem{Name: "B"})
	ctx := context.Background()

	if err := f.rt.RemoveExercise(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if s := f.rt.Session(); s.CurrentExerciseID != a.ID {
		t.Errorf("cursor = %s, want %s", s.CurrentExerciseID, a.ID)
	}
	if err := f.rt.RemoveExercise(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if s := f.rt.Session(); s.CurrentExerciseID != "" || len(s.Exercises) != 0 {
		t.Errorf("session = %+v", s)
	}
	if err := f.rt.RemoveExercise(ctx, a.ID); !errors.Is(err, ErrExerciseNotFound) {
		t.Errorf("second removal = %v", err)
	}
}

// TestPauseResumeAccumulates verifies paused time is excluded from the session clock.
func TestPauseResumeAccumulates(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	f.clock.Advance(10 * time.Minute)
	if err := f.rt.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.Pause(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double pause = %v, want ErrInvalidTransition", err)
	}
	f.clock.Advance(5 * time.Minute)
	if got := f.rt.ElapsedSession(f.clock.Now()); got != 10*time.Minute {
		t.Errorf("elapsed while paused = %v, want 10m", got)
	}
	if err := f.rt.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(2 * time.Minute)

	s := f.rt.Session()
	if s.TotalPausedMs != (5 * time.Minute).Milliseconds() || s.IsPaused {
		t.Errorf("session = %+v", s)
	}
	if got := f.rt.ElapsedSession(f.clock.Now()); got != 12*time.Minute {
		t.Errorf("elapsed = %v, want 12m", got)
	}
}

// TestRestTimerOperations covers the rest lifecycle through the runtime.
func TestRestTimerOperations(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	if _, err := f.rt.PauseRest(ctx); !errors.Is(err, ErrNoRestTimer) {
		t.Errorf("PauseRest without timer = %v", err)
	}

	f.add(t, models.CatalogItem{Name: "Row", RestSeconds: 120})
	st, err := f.rt.StartRest(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if st.DurationSeconds != 120 {
		t.Errorf("duration = %d, want the exercise's 120", st.DurationSeconds)
	}

	f.clock.Advance(30 * time.Second)
	if _, err := f.rt.PauseRest(ctx); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Minute)
	resumed, err := f.rt.ResumeRest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.InstanceID != st.InstanceID {
		t.Error("resume changed the instance id")
	}
	if _, remaining := timer.Compute(resumed, f.clock.Now()); remaining != 90 {
		t.Errorf("remaining after resume = %d, want 90", remaining)
	}

	extended, err := f.rt.ExtendRest(ctx, 15)
	if err != nil || extended.DurationSeconds != 135 {
		t.Errorf("extend = %d, %v", extended.DurationSeconds, err)
	}
	if err := f.rt.SkipRest(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.rt.RestTimer(); ok {
		t.Error("timer still present after skip")
	}
}

// TestPersistenceFailureKeepsState verifies a failed upsert is reported and
// the in-memory mutation is not rolled back.
func TestPersistenceFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.store.failUpsert = true

	ex, err := f.rt.AddExercise(context.Background(), models.CatalogItem{Name: "Row"})
	var pe *PersistenceError
	if !errors.As(err, &pe) || !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want *PersistenceError wrapping the store error", err)
	}
	if _, ok := f.rt.Session().Exercise(ex.ID); !ok {
		t.Error("in-memory session was rolled back")
	}

	f.store.failUpsert = false
	if err := f.rt.UpdateNotes(context.Background(), ex.ID, "ok"); err != nil {
		t.Fatalf("recovery write: %v", err)
	}
	restored := NewRuntime(1, f.store, discardLogger())
	if err := restored.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := restored.Session().Exercise(ex.ID); !ok {
		t.Error("next successful write did not carry the earlier mutation")
	}
}

// TestStaleSnapshotDetected verifies a runtime behind the stored version is rejected.
func TestStaleSnapshotDetected(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()

	other := NewRuntime(1, f.store, discardLogger(), WithClock(f.clock.Now))
	if err := other.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := other.AddExercise(ctx, models.CatalogItem{Name: "Row"}); err != nil {
		t.Fatal(err)
	}

	_, err := f.rt.AddExercise(ctx, models.CatalogItem{Name: "Curl"})
	if !errors.Is(err, ErrStaleSnapshot) {
		t.Errorf("err = %v, want ErrStaleSnapshot", err)
	}
}

// TestRestoreRoundTrip verifies a restored runtime resumes where the previous left off.
func TestRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	ctx := context.Background()
	ex := f.add(t, models.CatalogItem{Name: "Row"})
	if _, err := f.rt.StartRest(ctx, 60); err != nil {
		t.Fatal(err)
	}
	if err := f.rt.Pause(ctx); err != nil {
		t.Fatal(err)
	}

	restored := NewRuntime(1, f.store, discardLogger(), WithClock(f.clock.Now))
	if err := restored.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if restored.Status() != StatusPaused {
		t.Errorf("status = %s, want paused", restored.Status())
	}
	s := restored.Session()
	if s.CurrentExerciseID != ex.ID || s.RestTimer == nil || s.Version != f.rt.Session().Version {
		t.Errorf("restored = %+v", s)
	}

	empty := NewRuntime(2, f.store, discardLogger())
	if err := empty.Restore(ctx); err != nil || empty.Status() != StatusNotStarted {
		t.Errorf("restore without snapshot = %s, %v", empty.Status(), err)
	}
}

// TestVolume covers warmups, dropsets, bodyweight and time exercises, which
// count like any other exercise.
func TestVolume(t *testing.T) {
	exercises := []models.ExerciseEntry{
		{Name: "Bench", Sets: []models.Set{
			{Reps: 10, Weight: 60, Completed: true, IsWarmup: true},
			{Reps: 8, Weight: 80, Completed: true, Dropsets: []models.Dropset{
				{Reps: 6, Weight: 60, Completed: true},
				{Reps: 6, Weight: 40},
			}},
			{Reps: 8, Weight: 80},
		}},
		{Name: "Weighted Pull Up", IncludesBodyweight: true, Sets: []models.Set{
			{Reps: 5, Weight: 10, Completed: true},
		}},
		{Name: "Plank", TrackingMode: models.TrackTime, Sets: []models.Set{
			{Reps: 60, Weight: 20, Completed: true},
		}},
	}
	// 8*80 + 6*60 + 5*(10+75) + 60*20
	if got := Volume(exercises, 75); got != 640+360+425+1200 {
		t.Errorf("Volume = %v, want %v", got, 640+360+425+1200)
	}
	if got := Volume(exercises, 0); got != 640+360+50+1200 {
		t.Errorf("Volume without bodyweight = %v", got)
	}
}

// TestFinishRecordsHistory verifies the history record, the cleared session
// and the duration excluding paused time.
func TestFinishRecordsHistory(t *testing.T) {
	f := newFixture(t, WithBodyweight(func(context.Context, int) float64 { return 80 }))
	f.start(t)
	ctx := context.Background()
	ex := f.add(t, models.CatalogItem{Name: "Row", PrimaryMuscle: "Espalda"})
	if err := f.rt.UpdateSets(ctx, ex.ID, []models.Set{{Reps: 10, Weight: 50, Completed: true}, {Reps: 10, Weight: 50}}); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(30 * time.Minute)
	_ = f.rt.Pause(ctx)
	f.clock.Advance(15 * time.Minute)
	_ = f.rt.Resume(ctx)
	f.clock.Advance(15 * time.Minute)

	res, err := f.rt.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rec := res.Record
	if rec.DurationMinutes != 45 || rec.TotalVolume != 500 || rec.BodyweightKg != 80 || rec.Source != models.SourceSession {
		t.Errorf("record = %+v", rec)
	}
	if !rec.Date.Equal(t0) || len(rec.Exercises) != 1 {
		t.Errorf("record date/exercises = %v / %d", rec.Date, len(rec.Exercises))
	}
	if f.rt.Status() != StatusFinished || f.rt.Session() != nil {
		t.Errorf("runtime after finish = %s", f.rt.Status())
	}
	if _, ok := f.store.active[1]; ok {
		t.Error("active session not deleted")
	}
	if len(f.store.history) != 1 {
		t.Errorf("history = %d records", len(f.store.history))
	}
	if len(res.Improvements) != 0 || res.Surfaced != nil {
		t.Errorf("first performance reported improvements: %+v", res.Improvements)
	}
	if snap := f.store.best[1]; snap["Row"].Weight != 50 {
		t.Errorf("snapshot = %+v, want Row baseline", snap)
	}
	if len(f.sink.ofType(EventSessionFinished)) != 1 {
		t.Error("no finished event")
	}

	if err := f.rt.Start(ctx, StartSource{}, nil); err != nil {
		t.Errorf("start after finish = %v", err)
	}
}

// TestFinishBackdatedNominalDuration verifies backdated sessions record the
// nominal duration.
func TestFinishBackdatedNominalDuration(t *testing.T) {
	f := newFixture(t)
	day := t0.Add(-72 * time.Hour)
	if err := f.rt.Start(context.Background(), StartSource{}, &day); err != nil {
		t.Fatal(err)
	}
	res, err := f.rt.Finish(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Record.DurationMinutes != 60 {
		t.Errorf("duration = %d, want 60", res.Record.DurationMinutes)
	}
}

// TestFinishImprovements verifies one event per improving exercise and the
// last one surfaced.
func TestFinishImprovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.history = []models.HistoryRecord{{UserID: 1, Date: t0.Add(-48 * time.Hour), Exercises: []models.ExerciseEntry{
		{Name: "Bench", Sets: []models.Set{{Reps: 5, Weight: 100, Completed: true}}},
		{Name: "Row", Sets: []models.Set{{Reps: 10, Weight: 60, Completed: true}}},
	}}}
	f.store.best[1] = models.BestSnapshot{"Bench": {Weight: 100, Reps: 5, Date: t0.Add(-48 * time.Hour)}}

	f.start(t)
	bench := f.add(t, models.CatalogItem{Name: "Bench"})
	row := f.add(t, models.CatalogItem{Name: "Row"})
	curl := f.add(t, models.CatalogItem{Name: "Curl"})
	_ = f.rt.UpdateSets(ctx, bench.ID, []models.Set{{Reps: 5, Weight: 105, Completed: true}})
	_ = f.rt.UpdateSets(ctx, row.ID, []models.Set{{Reps: 12, Weight: 60, Completed: true}})
	_ = f.rt.UpdateSets(ctx, curl.ID, []models.Set{{Reps: 10, Weight: 15, Completed: true}})

	res, err := f.rt.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Improvements) != 2 {
		t.Fatalf("improvements = %+v, want bench and row", res.Improvements)
	}
	if res.Improvements[0].Metric != records.MetricE1RM || res.Improvements[1].Key != "row" {
		t.Errorf("improvements = %+v", res.Improvements)
	}
	if res.Surfaced == nil || res.Surfaced.Key != "row" {
		t.Errorf("surfaced = %+v, want row", res.Surfaced)
	}
	if n := len(f.sink.ofType(EventRecordImproved)); n != 2 {
		t.Errorf("record events = %d, want 2", n)
	}
	if f.store.best[1]["Bench"].Weight != 105 || f.store.best[1]["Curl"].Weight != 15 {
		t.Errorf("snapshot = %+v", f.store.best[1])
	}
}

// TestFinishAppendFailure verifies the session survives a failed history write.
func TestFinishAppendFailure(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.store.failAppend = true
	if _, err := f.rt.Finish(context.Background()); !IsPersistence(err) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if !f.rt.Status().InProgress() || f.rt.Session() == nil {
		t.Error("session lost after failed finish")
	}
}

// TestFinishRetryAfterClearFailure verifies a finish whose active-session
// clear failed can be retried without a second history record, and that the
// retry still reports improvements against the earlier history.
func TestFinishRetryAfterClearFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.history = []models.HistoryRecord{{ID: "old", UserID: 1, Date: t0.Add(-48 * time.Hour), Exercises: []models.ExerciseEntry{
		{Name: "Bench", Sets: []models.Set{{Reps: 5, Weight: 100, Completed: true}}},
	}}}

	f.start(t)
	bench := f.add(t, models.CatalogItem{Name: "Bench"})
	_ = f.rt.UpdateSets(ctx, bench.ID, []models.Set{{Reps: 5, Weight: 110, Completed: true}})
	sessionID := f.rt.Session().ID

	f.store.failDelete = true
	if _, err := f.rt.Finish(ctx); !IsPersistence(err) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if !f.rt.Status().InProgress() {
		t.Fatal("session should still be in progress")
	}

	f.store.failDelete = false
	res, err := f.rt.Finish(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(f.store.history) != 2 {
		t.Errorf("history = %d records, want 2", len(f.store.history))
	}
	if res.Record.ID != sessionID {
		t.Errorf("record id = %q, want session id %q", res.Record.ID, sessionID)
	}
	if len(res.Improvements) != 1 || res.Improvements[0].Key != "bench" {
		t.Errorf("improvements = %+v, want bench", res.Improvements)
	}
	if f.store.best[1]["Bench"].Weight != 110 {
		t.Errorf("snapshot = %+v", f.store.best[1])
	}
}

// TestFinishTimeExerciseRecords verifies a time-tracked best written to the
// snapshot comes back as a time record, not a reps record.
func TestFinishTimeExerciseRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.start(t)
	plank := f.add(t, models.CatalogItem{Name: "Plank", TrackingMode: models.TrackTime})
	_ = f.rt.UpdateSets(ctx, plank.ID, []models.Set{{Reps: 90, Completed: true}})
	if _, err := f.rt.Finish(ctx); err != nil {
		t.Fatal(err)
	}

	rows := records.Derive(f.store.history, nil, f.store.best[1])
	if got := records.QueryRaw(rows, "", "reps", ""); len(got) != 0 {
		t.Errorf("reps records = %+v, want none", got)
	}
	timed := records.QueryRaw(rows, "", "time", "")
	if len(timed) != 1 || timed[0].BestTimeSeconds != 90 || timed[0].BestReps != 0 {
		t.Errorf("time records = %+v", timed)
	}

	// The snapshot alone still reads as time once the catalog knows the mode.
	catalog := []models.CatalogItem{{Name: "Plank", TrackingMode: models.TrackTime}}
	rows = records.Derive(nil, catalog, f.store.best[1])
	if len(rows) != 1 || rows[0].BestReps != 0 || rows[0].BestTimeSeconds != 90 {
		t.Errorf("snapshot-only rows = %+v", rows)
	}
}

// TestCancel verifies cancel discards the session without history.
func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	if err := f.rt.Cancel(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.rt.Status() != StatusCancelled || len(f.store.history) != 0 || len(f.store.active) != 0 {
		t.Errorf("after cancel: status=%s history=%d active=%d", f.rt.Status(), len(f.store.history), len(f.store.active))
	}
	if err := f.rt.Cancel(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("second cancel = %v", err)
	}
}
