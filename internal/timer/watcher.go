package timer

import (
	"context"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
)

// Completions remembers which countdown instances already signalled
// completion, so each instance fires at most once.
type Completions struct {
	mu    sync.Mutex
	fired map[string]struct{}
}

// NewCompletions creates an empty tracker.
func NewCompletions() *Completions {
	return &Completions{fired: make(map[string]struct{})}
}

// Observe returns true the first time s is seen with no time remaining.
func (c *Completions) Observe(s models.RestTimerState, now time.Time) bool {
	if _, remaining := Compute(s, now); remaining > 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.fired[s.InstanceID]; ok {
		return false
	}
	c.fired[s.InstanceID] = struct{}{}
	return true
}

// Forget drops an instance once it can no longer be observed.
func (c *Completions) Forget(instanceID string) {
	c.mu.Lock()
	delete(c.fired, instanceID)
	c.mu.Unlock()
}

// Tick is one display refresh of a running countdown.
type Tick struct {
	InstanceID string `json:"instance_id"`
	Elapsed    int    `json:"elapsed"`
	Remaining  int    `json:"remaining"`
	Paused     bool   `json:"paused"`
}

// Watcher recomputes a countdown periodically for display and fires the
// completion callback once per instance.
type Watcher struct {
	Interval    time.Duration
	Now         func() time.Time
	Completions *Completions
}

// Run polls state until ctx is cancelled or state reports no timer.
// Missed ticks do not drift the countdown; every tick recomputes from timestamps.
func (w *Watcher) Run(ctx context.Context, state func() (models.RestTimerState, bool), onTick func(Tick), onDone func(models.RestTimerState)) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	now := w.Now
	if now == nil {
		now = time.Now
	}
	completions := w.Completions
	if completions == nil {
		completions = NewCompletions()
	}

	check := func() bool {
		s, ok := state()
		if !ok {
			return false
		}
		t := now()
		elapsed, remaining := Compute(s, t)
		if onTick != nil {
			onTick(Tick{InstanceID: s.InstanceID, Elapsed: elapsed, Remaining: remaining, Paused: IsPaused(s)})
		}
		if completions.Observe(s, t) && onDone != nil {
			onDone(s)
		}
		return true
	}

	if !check() {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !check() {
				return
			}
		}
	}
}
