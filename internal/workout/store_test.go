package workout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu       sync.Mutex
	active   map[int][]byte
	versions map[int]int64
	history  []models.HistoryRecord
	best     map[int]models.BestSnapshot

	failUpsert bool
	failAppend bool
	failDelete bool
	upserts    int
}

func newMemStore() *memStore {
	return &memStore{
		active:   make(map[int][]byte),
		versions: make(map[int]int64),
		best:     make(map[int]models.BestSnapshot),
	}
}

func (m *memStore) UpsertActiveSession(_ context.Context, userID int, snapshot []byte, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return errStoreDown
	}
	if cur, ok := m.versions[userID]; ok && version <= cur {
		return ErrStaleSnapshot
	}
	m.upserts++
	m.active[userID] = append([]byte(nil), snapshot...)
	m.versions[userID] = version
	return nil
}

func (m *memStore) GetActiveSession(_ context.Context, userID int) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.active[userID]
	return data, ok, nil
}

func (m *memStore) DeleteActiveSession(_ context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete {
		return errStoreDown
	}
	delete(m.active, userID)
	delete(m.versions, userID)
	return nil
}

func (m *memStore) AppendHistoryRecord(_ context.Context, rec models.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppend {
		return errStoreDown
	}
	for _, h := range m.history {
		if rec.ID != "" && h.ID == rec.ID {
			return nil
		}
	}
	m.history = append(m.history, rec)
	return nil
}

func (m *memStore) ListHistory(_ context.Context, userID int, q HistoryQuery) ([]models.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoryRecord
	for _, rec := range m.history {
		if rec.UserID != userID {
			continue
		}
		if !q.Since.IsZero() && rec.Date.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !rec.Date.Before(q.Until) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (m *memStore) UpsertBestRecord(_ context.Context, userID int, name string, best models.BestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.best[userID] == nil {
		m.best[userID] = models.BestSnapshot{}
	}
	m.best[userID][name] = best
	return nil
}

func (m *memStore) ListBestRecords(_ context.Context, userID int) (models.BestSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := models.BestSnapshot{}
	for k, v := range m.best[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *memStore) DeleteAllBestRecords(_ context.Context, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.best, userID)
	return nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects notified events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(_ int, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
