package workout

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/timer"
)

// ActiveSessionStore keeps the one in-progress session per user as an
// encoded snapshot. Upserts carrying a version not greater than the stored
// one fail with ErrStaleSnapshot.
type ActiveSessionStore interface {
	UpsertActiveSession(ctx context.Context, userID int, snapshot []byte, version int64) error
	GetActiveSession(ctx context.Context, userID int) (snapshot []byte, found bool, err error)
	DeleteActiveSession(ctx context.Context, userID int) error
}

// HistoryQuery narrows ListHistory. Zero times are unbounded.
type HistoryQuery struct {
	Since time.Time
	Until time.Time
	Limit int
}

// HistoryStore keeps finished sessions and the best-record snapshot.
type HistoryStore interface {
	AppendHistoryRecord(ctx context.Context, rec models.HistoryRecord) error
	ListHistory(ctx context.Context, userID int, q HistoryQuery) ([]models.HistoryRecord, error)
	UpsertBestRecord(ctx context.Context, userID int, name string, best models.BestRecord) error
	ListBestRecords(ctx context.Context, userID int) (models.BestSnapshot, error)
	DeleteAllBestRecords(ctx context.Context, userID int) error
}

// Store is the persistence adapter the runtime requires.
type Store interface {
	ActiveSessionStore
	HistoryStore
}

// EventType names what an Event signals.
type EventType string

const (
	EventSessionUpdated   EventType = "session_updated"
	EventSessionFinished  EventType = "session_finished"
	EventSessionCancelled EventType = "session_cancelled"
	EventRestTick         EventType = "rest_tick"
	EventRestCompleted    EventType = "rest_completed"
	EventRecordImproved   EventType = "record_improved"
)

// Event is a signal for side-effect sinks (notification, vibration, UI).
type Event struct {
	Type        EventType            `json:"type"`
	At          time.Time            `json:"at"`
	Session     *models.Session      `json:"session,omitempty"`
	Tick        *timer.Tick          `json:"tick,omitempty"`
	Improvement *records.Improvement `json:"improvement,omitempty"`
}

// Notifier receives events. Implementations must not block.
type Notifier interface {
	Notify(userID int, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(userID int, ev Event)

func (f NotifierFunc) Notify(userID int, ev Event) { f(userID, ev) }

type discard struct{}

func (discard) Notify(int, Event) {}
