package mcp

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/muscles"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/workout"
)

// DataSource abstracts the data layer for MCP tools. Local (in-process) and
// HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	PersonalRecords(ctx context.Context, userID int) ([]records.Row, error)
	History(ctx context.Context, start, end time.Time, userID int) ([]models.HistoryRecord, error)
	MuscleSummary(ctx context.Context, start, end time.Time, bucket muscles.Bucket, userID int) (*muscles.Summary, error)
	ActiveSession(ctx context.Context, userID int) (*SessionState, error)
	TrainingStats(ctx context.Context, userID int) (*storage.DataStats, error)
}

// SessionState is the caller's current session, nil Session when idle.
type SessionState struct {
	Status   workout.Status   `json:"status"`
	Session  *models.Session  `json:"session"`
	Progress *models.Progress `json:"progress,omitempty"`
}

// Local reads straight from the store and the session manager of the
// running server.
type Local struct {
	store    storage.Backend
	sessions *workout.Manager
}

var _ DataSource = (*Local)(nil)

// NewLocal creates a Local data source.
func NewLocal(store storage.Backend, sessions *workout.Manager) *Local {
	return &Local{store: store, sessions: sessions}
}

func (l *Local) PersonalRecords(ctx context.Context, userID int) ([]records.Row, error) {
	if userID <= 0 {
		return nil, workout.ErrMissingContext
	}
	return storage.PersonalRecords(ctx, l.store, userID)
}

func (l *Local) History(ctx context.Context, start, end time.Time, userID int) ([]models.HistoryRecord, error) {
	if userID <= 0 {
		return nil, workout.ErrMissingContext
	}
	return l.store.ListHistory(ctx, userID, workout.HistoryQuery{Since: start, Until: end})
}

func (l *Local) MuscleSummary(ctx context.Context, start, end time.Time, bucket muscles.Bucket, userID int) (*muscles.Summary, error) {
	history, err := l.History(ctx, start, end, userID)
	if err != nil {
		return nil, err
	}
	summary := muscles.Summarize(history, bucket, start, end)
	return &summary, nil
}

func (l *Local) ActiveSession(ctx context.Context, userID int) (*SessionState, error) {
	status, s, err := l.sessions.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	state := &SessionState{Status: status, Session: s}
	if s != nil {
		p := s.Progress()
		state.Progress = &p
	}
	return state, nil
}

func (l *Local) TrainingStats(ctx context.Context, userID int) (*storage.DataStats, error) {
	if userID <= 0 {
		return nil, workout.ErrMissingContext
	}
	return storage.GetDataStats(ctx, l.store, userID)
}
