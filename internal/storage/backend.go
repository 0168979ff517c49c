package storage

import (
	"context"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
)

// Backend is the full surface the server needs: the workout store plus
// users, catalog, routines and import logs. DB and SQLite both satisfy it.
type Backend interface {
	workout.Store

	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	Bodyweight(ctx context.Context, userID int) (float64, error)
	SetBodyweight(ctx context.Context, userID int, kg float64) error

	ListCatalog(ctx context.Context, userID int) ([]models.CatalogItem, error)
	GetCatalogItem(ctx context.Context, id string) (models.CatalogItem, error)
	CreateCatalogItem(ctx context.Context, userID int, item models.CatalogItem) (models.CatalogItem, error)
	UpdateCatalogItem(ctx context.Context, userID int, item models.CatalogItem) (models.CatalogItem, error)

	ListRoutines(ctx context.Context, userID int) ([]models.Routine, error)
	GetRoutine(ctx context.Context, id string) (models.Routine, error)
	CreateRoutine(ctx context.Context, userID int, r models.Routine) (models.Routine, error)

	InsertImportLog(ctx context.Context, log ImportLog) (int64, error)
	UpdateImportLog(ctx context.Context, id int64, log ImportLog) error
	QueryImportLogs(ctx context.Context, userID, limit int) ([]ImportLog, error)
}

var (
	_ Backend = (*DB)(nil)
	_ Backend = (*SQLite)(nil)
)

type withSessions struct {
	Backend
	active workout.ActiveSessionStore
}

func (w withSessions) UpsertActiveSession(ctx context.Context, userID int, snapshot []byte, version int64) error {
	return w.active.UpsertActiveSession(ctx, userID, snapshot, version)
}

func (w withSessions) GetActiveSession(ctx context.Context, userID int) ([]byte, bool, error) {
	return w.active.GetActiveSession(ctx, userID)
}

func (w withSessions) DeleteActiveSession(ctx context.Context, userID int) error {
	return w.active.DeleteActiveSession(ctx, userID)
}

// WithSessions returns b with active sessions served from active instead.
func WithSessions(b Backend, active workout.ActiveSessionStore) Backend {
	return withSessions{Backend: b, active: active}
}
