// Package workout runs the in-progress workout session of a user: its
// lifecycle, the exercises and sets logged in it, the embedded rest timer,
// and the conversion of a finished session into history.
package workout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/timer"
)

// Settings are the defaults applied by session operations.
type Settings struct {
	DefaultSets        int
	DefaultReps        int
	DefaultWeight      float64
	DefaultRestSeconds int
	// NominalMinutes is the duration recorded for backdated sessions.
	NominalMinutes int
	MaxNameLength  int
}

// DefaultSettings returns the stock defaults.
func DefaultSettings() Settings {
	return Settings{
		DefaultSets:        3,
		DefaultReps:        10,
		DefaultWeight:      0,
		DefaultRestSeconds: 90,
		NominalMinutes:     60,
		MaxNameLength:      100,
	}
}

// BodyweightFunc returns the user's current bodyweight in kg, 0 if unknown.
type BodyweightFunc func(ctx context.Context, userID int) float64

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(r *Runtime) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithBodyweight sets the bodyweight provider used for volume.
func WithBodyweight(fn BodyweightFunc) Option {
	return func(r *Runtime) { r.bodyweight = fn }
}

// WithSettings overrides DefaultSettings.
func WithSettings(s Settings) Option {
	return func(r *Runtime) { r.settings = s }
}

// Runtime holds one user's session and the collaborators operations need.
// It is not safe for concurrent use; Manager serializes access per user.
type Runtime struct {
	userID     int
	store      Store
	logger     *slog.Logger
	now        func() time.Time
	notifier   Notifier
	bodyweight BodyweightFunc
	settings   Settings

	status  Status
	session *models.Session
}

// NewRuntime creates a runtime in the not-started state. Call Restore to
// pick up a session persisted by an earlier process.
func NewRuntime(userID int, store Store, logger *slog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		userID:   userID,
		store:    store,
		logger:   logger,
		now:      time.Now,
		notifier: discard{},
		settings: DefaultSettings(),
		status:   StatusNotStarted,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UserID returns the owning user.
func (r *Runtime) UserID() int { return r.userID }

// Status returns the lifecycle state.
func (r *Runtime) Status() Status { return r.status }

// Session returns a copy of the current session, or nil.
func (r *Runtime) Session() *models.Session { return cloneSession(r.session) }

// RestTimer returns a copy of the embedded rest timer.
func (r *Runtime) RestTimer() (models.RestTimerState, bool) {
	if r.session == nil || r.session.RestTimer == nil {
		return models.RestTimerState{}, false
	}
	return *cloneSession(r.session).RestTimer, true
}

func (r *Runtime) ready() error {
	if r.userID <= 0 || r.store == nil {
		return ErrMissingContext
	}
	return nil
}

// active returns the in-progress session.
func (r *Runtime) active() (*models.Session, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if !r.status.InProgress() || r.session == nil {
		return nil, ErrNoActiveSession
	}
	return r.session, nil
}

// persist stamps a new version and upserts the full snapshot. On failure the
// in-memory session is kept as is.
func (r *Runtime) persist(ctx context.Context, op string) error {
	s := r.session
	s.Version++
	s.UpdatedAt = r.now()

	data, err := EncodeSnapshot(s)
	if err != nil {
		return &PersistenceError{Op: op, Err: fmt.Errorf("encoding snapshot: %w", err)}
	}
	if err := r.store.UpsertActiveSession(ctx, r.userID, data, s.Version); err != nil {
		r.logger.Warn("session snapshot not persisted",
			"user_id", r.userID, "op", op, "version", s.Version, "error", err)
		return &PersistenceError{Op: op, Err: err}
	}
	r.notifier.Notify(r.userID, Event{Type: EventSessionUpdated, At: s.UpdatedAt, Session: cloneSession(s)})
	return nil
}

// Restore loads the persisted session, if any. A malformed payload yields
// an empty session rather than an error.
func (r *Runtime) Restore(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	data, found, err := r.store.GetActiveSession(ctx, r.userID)
	if err != nil {
		return &PersistenceError{Op: "restore", Err: err}
	}
	if !found {
		r.session = nil
		if r.status.InProgress() {
			r.status = StatusNotStarted
		}
		return nil
	}

	r.session = DecodeSnapshot(data, r.userID, r.now())
	r.status = StatusActive
	if r.session.IsPaused {
		r.status = StatusPaused
	}
	r.logger.Debug("session restored", "user_id", r.userID, "session_id", r.session.ID, "version", r.session.Version)
	return nil
}

// StartSource describes what a session is built from. A nil Routine starts
// a free session with no exercises.
type StartSource struct {
	Name    string
	Routine *models.Routine
}

// Start begins a new session. With overrideDate the session is backdated to
// 09:00 of that day in its location.
func (r *Runtime) Start(ctx context.Context, src StartSource, overrideDate *time.Time) error {
	if err := r.ready(); err != nil {
		return err
	}
	if r.status.InProgress() {
		return ErrSessionActive
	}
	if err := checkTransition(r.status, StatusActive); err != nil {
		return err
	}

	now := r.now()
	s := &models.Session{
		ID:        uuid.NewString(),
		UserID:    r.userID,
		Name:      strings.TrimSpace(src.Name),
		StartedAt: now,
		Exercises: []models.ExerciseEntry{},
	}
	if overrideDate != nil {
		y, m, d := overrideDate.Date()
		at := time.Date(y, m, d, 9, 0, 0, 0, overrideDate.Location())
		s.OverrideDate = &at
		s.StartedAt = at
	}

	if src.Routine != nil {
		id := src.Routine.ID
		s.RoutineID = &id
		if s.Name == "" {
			s.Name = src.Routine.Name
		}
		history, err := r.store.ListHistory(ctx, r.userID, HistoryQuery{})
		if err != nil {
			return &PersistenceError{Op: "start", Err: fmt.Errorf("loading history: %w", err)}
		}
		for _, re := range src.Routine.Exercises {
			s.Exercises = append(s.Exercises, r.prefill(re, history))
		}
		if len(s.Exercises) > 0 {
			s.CurrentExerciseID = s.Exercises[0].ID
		}
	}
	if s.Name == "" {
		s.Name = "Workout"
	}

	r.session = s
	r.status = StatusActive
	r.logger.Info("session started", "user_id", r.userID, "session_id", s.ID, "exercises", len(s.Exercises))
	return r.persist(ctx, "start")
}

// prefill builds a routine exercise's entry, copying the sets of its most
// recent performance when history has one.
func (r *Runtime) prefill(re models.RoutineExercise, history []models.HistoryRecord) models.ExerciseEntry {
	ex := entryFromCatalog(re.Exercise)
	if re.RestSeconds > 0 {
		ex.RestSeconds = re.RestSeconds
	}
	if ex.RestSeconds <= 0 {
		ex.RestSeconds = r.settings.DefaultRestSeconds
	}

	if last, ok := lastPerformance(history, ex.Name); ok && len(last.Sets) > 0 {
		for _, set := range last.Sets {
			drops := make([]models.Dropset, len(set.Dropsets))
			for i, d := range set.Dropsets {
				drops[i] = models.Dropset{Reps: d.Reps, Weight: d.Weight}
			}
			ex.Sets = append(ex.Sets, models.Set{Reps: set.Reps, Weight: set.Weight, IsWarmup: set.IsWarmup, Dropsets: drops})
		}
	} else {
		n, reps, weight := re.Sets, re.Reps, re.Weight
		if n <= 0 {
			n = r.settings.DefaultSets
		}
		if reps <= 0 {
			reps = r.settings.DefaultReps
		}
		if weight <= 0 {
			weight = r.settings.DefaultWeight
		}
		ex.Sets = r.seedSets(n, reps, weight)
	}
	assignSetIDs(ex.Sets)
	return ex
}

// lastPerformance finds the entry for name in the most recent record
// containing it.
func lastPerformance(history []models.HistoryRecord, name string) (models.ExerciseEntry, bool) {
	key := models.NormalizeName(name)
	var (
		best  models.ExerciseEntry
		when  time.Time
		found bool
	)
	for _, rec := range history {
		if found && !rec.Date.After(when) {
			continue
		}
		for _, ex := range rec.Exercises {
			if models.NormalizeName(ex.Name) == key {
				best, when, found = ex, rec.Date, true
				break
			}
		}
	}
	return best, found
}

func entryFromCatalog(item models.CatalogItem) models.ExerciseEntry {
	ex := models.ExerciseEntry{
		ID:                 uuid.NewString(),
		CatalogID:          item.ID,
		Name:               strings.TrimSpace(item.Name),
		PrimaryMuscle:      item.PrimaryMuscle,
		SecondaryMuscles:   append([]string(nil), item.SecondaryMuscles...),
		RestSeconds:        item.RestSeconds,
		TrackingMode:       item.TrackingMode,
		IncludesBodyweight: item.IncludesBodyweight,
		Sets:               []models.Set{},
	}
	ex.TrackingMode = ex.Mode()
	if item.SecondaryFactor != nil {
		f := *item.SecondaryFactor
		ex.SecondaryFactor = &f
	}
	return ex
}

func (r *Runtime) seedSets(n, reps int, weight float64) []models.Set {
	sets := make([]models.Set, n)
	for i := range sets {
		sets[i] = models.Set{ID: uuid.NewString(), Reps: reps, Weight: weight}
	}
	return sets
}

func (r *Runtime) validateName(s *models.Session, name, skipID string) error {
	if name == "" {
		return invalid("name", "must not be empty")
	}
	if n := len([]rune(name)); n > r.settings.MaxNameLength {
		return invalid("name", "%d characters exceeds the limit of %d", n, r.settings.MaxNameLength)
	}
	key := models.NormalizeName(name)
	for _, ex := range s.Exercises {
		if ex.ID != skipID && models.NormalizeName(ex.Name) == key {
			return invalid("name", "%q is already in this session", name)
		}
	}
	return nil
}

// AddExercise appends an entry seeded with the default sets and moves the
// cursor to it.
func (r *Runtime) AddExercise(ctx context.Context, item models.CatalogItem) (models.ExerciseEntry, error) {
	s, err := r.active()
	if err != nil {
		return models.ExerciseEntry{}, err
	}
	ex := entryFromCatalog(item)
	if err := r.validateName(s, ex.Name, ""); err != nil {
		return models.ExerciseEntry{}, err
	}
	if ex.SecondaryFactor != nil && !validNumber(*ex.SecondaryFactor) {
		return models.ExerciseEntry{}, invalid("secondary_factor", "must be a finite number")
	}
	if ex.RestSeconds < 0 {
		return models.ExerciseEntry{}, invalid("rest_seconds", "must not be negative")
	}
	if ex.RestSeconds == 0 {
		ex.RestSeconds = r.settings.DefaultRestSeconds
	}
	ex.Sets = r.seedSets(r.settings.DefaultSets, r.settings.DefaultReps, r.settings.DefaultWeight)

	s.Exercises = append(s.Exercises, ex)
	s.CurrentExerciseID = ex.ID
	s.CurrentSetIndex = 0
	if err := r.persist(ctx, "add exercise"); err != nil {
		return ex, err
	}
	return ex, nil
}

// RemoveExercise drops an entry. The cursor moves to the following entry,
// else the preceding one, else clears.
func (r *Runtime) RemoveExercise(ctx context.Context, exerciseID string) error {
	s, err := r.active()
	if err != nil {
		return err
	}
	idx := -1
	for i, ex := range s.Exercises {
		if ex.ID == exerciseID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrExerciseNotFound, exerciseID)
	}
	s.Exercises = append(s.Exercises[:idx], s.Exercises[idx+1:]...)
	if s.CurrentExerciseID == exerciseID {
		s.CurrentExerciseID, s.CurrentSetIndex = "", 0
		switch {
		case idx < len(s.Exercises):
			s.CurrentExerciseID = s.Exercises[idx].ID
		case idx > 0:
			s.CurrentExerciseID = s.Exercises[idx-1].ID
		}
	}
	return r.persist(ctx, "remove exercise")
}

func validNumber(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

func validateSets(sets []models.Set) error {
	for i, set := range sets {
		if set.Reps < 0 {
			return invalid("reps", "set %d: must not be negative", i+1)
		}
		if !validNumber(set.Weight) {
			return invalid("weight", "set %d: must be a non-negative number", i+1)
		}
		for j, d := range set.Dropsets {
			if d.Reps < 0 || !validNumber(d.Weight) {
				return invalid("dropsets", "set %d dropset %d: reps and weight must be non-negative", i+1, j+1)
			}
		}
	}
	return nil
}

func (r *Runtime) exercise(exerciseID string) (*models.Session, *models.ExerciseEntry, error) {
	s, err := r.active()
	if err != nil {
		return nil, nil, err
	}
	ex, ok := s.Exercise(exerciseID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrExerciseNotFound, exerciseID)
	}
	return s, ex, nil
}

// UpdateSets replaces the sets of an exercise.
func (r *Runtime) UpdateSets(ctx context.Context, exerciseID string, sets []models.Set) error {
	s, ex, err := r.exercise(exerciseID)
	if err != nil {
		return err
	}
	if err := validateSets(sets); err != nil {
		return err
	}
	replaced := make([]models.Set, len(sets))
	for i, set := range sets {
		set.Dropsets = append([]models.Dropset(nil), set.Dropsets...)
		replaced[i] = set
	}
	assignSetIDs(replaced)
	ex.Sets = replaced
	if s.CurrentExerciseID == exerciseID && s.CurrentSetIndex >= len(replaced) {
		s.CurrentSetIndex = max(0, len(replaced)-1)
	}
	return r.persist(ctx, "update sets")
}

// UpdatePosition moves the cursor to a set of an exercise.
func (r *Runtime) UpdatePosition(ctx context.Context, exerciseID string, setIndex int) error {
	s, ex, err := r.exercise(exerciseID)
	if err != nil {
		return err
	}
	if setIndex < 0 || (setIndex > 0 && setIndex >= len(ex.Sets)) {
		return invalid("set_index", "%d is out of range for %d sets", setIndex, len(ex.Sets))
	}
	s.CurrentExerciseID = exerciseID
	s.CurrentSetIndex = setIndex
	return r.persist(ctx, "update position")
}

// UpdateNotes replaces an exercise's notes.
func (r *Runtime) UpdateNotes(ctx context.Context, exerciseID, notes string) error {
	_, ex, err := r.exercise(exerciseID)
	if err != nil {
		return err
	}
	ex.Notes = notes
	return r.persist(ctx, "update notes")
}

// UpdateRest replaces an exercise's default rest.
func (r *Runtime) UpdateRest(ctx context.Context, exerciseID string, seconds int) error {
	_, ex, err := r.exercise(exerciseID)
	if err != nil {
		return err
	}
	if seconds < 0 {
		return invalid("rest_seconds", "must not be negative")
	}
	ex.RestSeconds = seconds
	return r.persist(ctx, "update rest")
}

// Pause suspends the session clock. The rest timer is unaffected.
func (r *Runtime) Pause(ctx context.Context) error {
	s, err := r.active()
	if err != nil {
		return err
	}
	if err := checkTransition(r.status, StatusPaused); err != nil {
		return err
	}
	now := r.now()
	s.IsPaused = true
	s.PausedAt = &now
	r.status = StatusPaused
	return r.persist(ctx, "pause")
}

// Resume adds the paused interval to the session's paused total.
func (r *Runtime) Resume(ctx context.Context) error {
	s, err := r.active()
	if err != nil {
		return err
	}
	if err := checkTransition(r.status, StatusActive); err != nil {
		return err
	}
	if s.PausedAt != nil {
		if d := r.now().Sub(*s.PausedAt); d > 0 {
			s.TotalPausedMs += d.Milliseconds()
		}
	}
	s.IsPaused = false
	s.PausedAt = nil
	r.status = StatusActive
	return r.persist(ctx, "resume")
}

// ElapsedSession returns wall time since start minus paused time.
func (r *Runtime) ElapsedSession(now time.Time) time.Duration {
	if r.session == nil {
		return 0
	}
	return activeDuration(r.session, now)
}

func activeDuration(s *models.Session, now time.Time) time.Duration {
	d := now.Sub(s.StartedAt) - time.Duration(s.TotalPausedMs)*time.Millisecond
	if s.IsPaused && s.PausedAt != nil {
		d -= now.Sub(*s.PausedAt)
	}
	return max(0, d)
}

// StartRest starts a countdown. A non-positive seconds uses the current
// exercise's rest, falling back to the default.
func (r *Runtime) StartRest(ctx context.Context, seconds int) (models.RestTimerState, error) {
	s, err := r.active()
	if err != nil {
		return models.RestTimerState{}, err
	}
	if seconds <= 0 {
		seconds = r.settings.DefaultRestSeconds
		if ex, ok := s.Exercise(s.CurrentExerciseID); ok && ex.RestSeconds > 0 {
			seconds = ex.RestSeconds
		}
	}
	state := timer.Start(seconds, r.now())
	s.RestTimer = &state
	return state, r.persist(ctx, "start rest")
}

func (r *Runtime) restTimer() (*models.Session, error) {
	s, err := r.active()
	if err != nil {
		return nil, err
	}
	if s.RestTimer == nil {
		return nil, ErrNoRestTimer
	}
	return s, nil
}

func (r *Runtime) replaceRest(ctx context.Context, op string, fn func(models.RestTimerState) models.RestTimerState) (models.RestTimerState, error) {
	s, err := r.restTimer()
	if err != nil {
		return models.RestTimerState{}, err
	}
	next := fn(*s.RestTimer)
	s.RestTimer = &next
	return next, r.persist(ctx, op)
}

// PauseRest freezes the countdown.
func (r *Runtime) PauseRest(ctx context.Context) (models.RestTimerState, error) {
	now := r.now()
	return r.replaceRest(ctx, "pause rest", func(t models.RestTimerState) models.RestTimerState {
		return timer.Pause(t, now)
	})
}

// ResumeRest continues a frozen countdown from its frozen value.
func (r *Runtime) ResumeRest(ctx context.Context) (models.RestTimerState, error) {
	now := r.now()
	return r.replaceRest(ctx, "resume rest", func(t models.RestTimerState) models.RestTimerState {
		return timer.Resume(t, now)
	})
}

// ExtendRest adds delta seconds to the countdown duration.
func (r *Runtime) ExtendRest(ctx context.Context, delta float64) (models.RestTimerState, error) {
	return r.replaceRest(ctx, "extend rest", func(t models.RestTimerState) models.RestTimerState {
		return timer.Extend(t, delta)
	})
}

// SkipRest discards the countdown.
func (r *Runtime) SkipRest(ctx context.Context) error {
	s, err := r.restTimer()
	if err != nil {
		return err
	}
	s.RestTimer = nil
	return r.persist(ctx, "skip rest")
}

// Cancel discards the session without recording history.
func (r *Runtime) Cancel(ctx context.Context) error {
	s, err := r.active()
	if err != nil {
		return err
	}
	if err := checkTransition(r.status, StatusCancelled); err != nil {
		return err
	}
	if err := r.store.DeleteActiveSession(ctx, r.userID); err != nil {
		return &PersistenceError{Op: "cancel", Err: err}
	}
	r.session = nil
	r.status = StatusCancelled
	r.logger.Info("session cancelled", "user_id", r.userID, "session_id", s.ID)
	r.notifier.Notify(r.userID, Event{Type: EventSessionCancelled, At: r.now()})
	return nil
}

// IsPersistence reports whether err is a store failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
