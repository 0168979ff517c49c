package workout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/timer"
)

// ManagerConfig tunes a Manager.
type ManagerConfig struct {
	// TickInterval is the rest-timer display refresh period.
	TickInterval time.Duration
	// IdleTimeout evicts runtimes not used for this long. State stays in the store.
	IdleTimeout time.Duration
	// Now replaces time.Now for the manager and its runtimes.
	Now     func() time.Time
	Options []Option
}

type userSession struct {
	mu       sync.Mutex
	rt       *Runtime
	lastUsed time.Time

	watch *restWatch
}

// restWatch is the display loop of one countdown instance. expired is set
// once the loop has seen the countdown reach zero and stopped.
type restWatch struct {
	id      string
	cancel  context.CancelFunc
	expired atomic.Bool
}

// Manager hosts one Runtime per user in a server process. Operations for a
// user are serialized; different users proceed in parallel.
type Manager struct {
	store       Store
	logger      *slog.Logger
	cfg         ManagerConfig
	now         func() time.Time
	completions *timer.Completions

	mu       sync.Mutex
	sessions map[int]*userSession

	subMu sync.Mutex
	subs  map[int]map[chan Event]struct{}
}

// NewManager creates a manager over store.
func NewManager(store Store, logger *slog.Logger, cfg ManagerConfig) *Manager {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:       store,
		logger:      logger,
		cfg:         cfg,
		now:         cfg.Now,
		completions: timer.NewCompletions(),
		sessions:    make(map[int]*userSession),
		subs:        make(map[int]map[chan Event]struct{}),
	}
}

// lock returns the user's entry with its mutex held. An entry evicted while
// the caller waited is discarded and looked up again.
func (m *Manager) lock(userID int) *userSession {
	for {
		m.mu.Lock()
		us, ok := m.sessions[userID]
		if !ok {
			us = &userSession{}
			m.sessions[userID] = us
		}
		m.mu.Unlock()

		us.mu.Lock()
		m.mu.Lock()
		current := m.sessions[userID] == us
		m.mu.Unlock()
		if current {
			return us
		}
		us.mu.Unlock()
	}
}

// Do runs fn against the user's runtime, restoring it from the store first
// if it is not loaded. A stale-snapshot error drops the runtime so the next
// call reloads the newer persisted state.
func (m *Manager) Do(ctx context.Context, userID int, fn func(*Runtime) error) error {
	if userID <= 0 {
		return ErrMissingContext
	}
	us := m.lock(userID)
	defer us.mu.Unlock()

	if us.rt == nil {
		opts := append([]Option{WithNotifier(m), WithClock(m.now)}, m.cfg.Options...)
		rt := NewRuntime(userID, m.store, m.logger, opts...)
		if err := rt.Restore(ctx); err != nil {
			return err
		}
		us.rt = rt
	}
	us.lastUsed = m.now()

	err := fn(us.rt)
	if errors.Is(err, ErrStaleSnapshot) {
		m.logger.Warn("stale session snapshot, reloading", "user_id", userID)
		us.rt = nil
	}
	m.syncWatcher(userID, us)
	return err
}

// Snapshot returns the user's status and a copy of the session.
func (m *Manager) Snapshot(ctx context.Context, userID int) (Status, *models.Session, error) {
	var (
		status Status
		s      *models.Session
	)
	err := m.Do(ctx, userID, func(rt *Runtime) error {
		status, s = rt.Status(), rt.Session()
		return nil
	})
	return status, s, err
}

// syncWatcher starts a watcher for a newly started countdown, restarts the
// display loop of an expired countdown that was extended, and stops the
// watcher of a countdown that went away. Callers hold us.mu.
func (m *Manager) syncWatcher(userID int, us *userSession) {
	var (
		state models.RestTimerState
		ok    bool
	)
	if us.rt != nil {
		state, ok = us.rt.RestTimer()
	}
	if ok && us.watch != nil && state.InstanceID == us.watch.id {
		if !us.watch.expired.Load() {
			return
		}
		if _, remaining := timer.Compute(state, m.now()); remaining <= 0 {
			return
		}
		// Same instance running again: completion stays recorded.
		us.watch.cancel()
		m.startWatch(userID, us, state.InstanceID)
		return
	}
	m.stopWatch(us)
	if ok {
		m.startWatch(userID, us, state.InstanceID)
	}
}

// stopWatch cancels the user's watcher and forgets its completion.
func (m *Manager) stopWatch(us *userSession) {
	if us.watch == nil {
		return
	}
	us.watch.cancel()
	m.completions.Forget(us.watch.id)
	us.watch = nil
}

func (m *Manager) startWatch(userID int, us *userSession, id string) {
	ctx, cancel := context.WithCancel(context.Background())
	rw := &restWatch{id: id, cancel: cancel}
	us.watch = rw
	w := &timer.Watcher{Interval: m.cfg.TickInterval, Now: m.now, Completions: m.completions}
	go w.Run(ctx,
		func() (models.RestTimerState, bool) {
			if rw.expired.Load() {
				return models.RestTimerState{}, false
			}
			us.mu.Lock()
			defer us.mu.Unlock()
			if us.rt == nil {
				return models.RestTimerState{}, false
			}
			cur, ok := us.rt.RestTimer()
			return cur, ok && cur.InstanceID == id
		},
		func(t timer.Tick) {
			if t.Remaining <= 0 && !t.Paused {
				rw.expired.Store(true)
			}
			m.Notify(userID, Event{Type: EventRestTick, At: m.now(), Tick: &t})
		},
		func(s models.RestTimerState) {
			m.logger.Debug("rest timer completed", "user_id", userID, "instance_id", s.InstanceID)
			t := timer.Tick{InstanceID: s.InstanceID, Elapsed: s.DurationSeconds}
			m.Notify(userID, Event{Type: EventRestCompleted, At: m.now(), Tick: &t})
		},
	)
}

// Notify fans an event out to the user's subscribers. Slow subscribers miss
// events rather than blocking the session.
func (m *Manager) Notify(userID int, ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs[userID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of the user's events and a function that
// unsubscribes and closes it.
func (m *Manager) Subscribe(userID int) (<-chan Event, func()) {
	ch := make(chan Event, 32)
	m.subMu.Lock()
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[chan Event]struct{})
	}
	m.subs[userID][ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs[userID], ch)
			if len(m.subs[userID]) == 0 {
				delete(m.subs, userID)
			}
			m.subMu.Unlock()
			close(ch)
		})
	}
}

// Run evicts idle runtimes until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.IdleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *Manager) evictIdle() {
	cutoff := m.now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, us := range m.sessions {
		if !us.mu.TryLock() {
			continue
		}
		if us.lastUsed.Before(cutoff) {
			m.dropLocked(us)
			delete(m.sessions, id)
			m.logger.Debug("idle session evicted", "user_id", id)
		}
		us.mu.Unlock()
	}
}

// dropLocked stops the watcher and forgets the runtime. Callers hold us.mu.
func (m *Manager) dropLocked(us *userSession) {
	m.stopWatch(us)
	us.rt = nil
}

// Close stops every watcher.
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*userSession, 0, len(m.sessions))
	for _, us := range m.sessions {
		all = append(all, us)
	}
	m.mu.Unlock()

	for _, us := range all {
		us.mu.Lock()
		m.dropLocked(us)
		us.mu.Unlock()
	}
}
