package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSQLiteActiveSessionVersions verifies older or equal versions are
// rejected as stale and never overwrite a newer snapshot.
func TestSQLiteActiveSessionVersions(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	_, found, err := db.GetActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.UpsertActiveSession(ctx, 1, []byte(`{"v":1}`), 1))
	require.NoError(t, db.UpsertActiveSession(ctx, 1, []byte(`{"v":2}`), 2))

	err = db.UpsertActiveSession(ctx, 1, []byte(`{"v":"old"}`), 2)
	assert.True(t, errors.Is(err, workout.ErrStaleSnapshot), "err = %v", err)

	data, found, err := db.GetActiveSession(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"v":2}`, string(data))

	require.NoError(t, db.DeleteActiveSession(ctx, 1))
	_, found, _ = db.GetActiveSession(ctx, 1)
	assert.False(t, found)

	// A deleted session starts over from version 1.
	require.NoError(t, db.UpsertActiveSession(ctx, 1, []byte(`{}`), 1))
}

// TestSQLiteHistory verifies ordering, range filtering, limits and that
// exercises survive the JSON column.
func TestSQLiteHistory(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := models.HistoryRecord{
			ID:     "h" + string(rune('a'+i)),
			UserID: 1,
			Name:   "Push",
			Date:   base.AddDate(0, 0, i),
			Source: models.SourceSession,
			Exercises: []models.ExerciseEntry{{
				ID: "e", Name: "Bench", PrimaryMuscle: "Pecho",
				Sets: []models.Set{{ID: "s", Reps: 5, Weight: 80, Completed: true}},
			}},
		}
		require.NoError(t, db.AppendHistoryRecord(ctx, rec))
	}
	// Other users are invisible; duplicates are ignored.
	require.NoError(t, db.AppendHistoryRecord(ctx, models.HistoryRecord{ID: "x", UserID: 2, Date: base}))
	require.NoError(t, db.AppendHistoryRecord(ctx, models.HistoryRecord{ID: "ha", UserID: 1, Name: "dup", Date: base}))

	all, err := db.ListHistory(ctx, 1, workout.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hc", all[0].ID)
	assert.Equal(t, "Push", all[2].Name)
	assert.True(t, all[2].Date.Equal(base))
	require.Len(t, all[0].Exercises, 1)
	assert.Equal(t, 80.0, all[0].Exercises[0].Sets[0].Weight)

	ranged, err := db.ListHistory(ctx, 1, workout.HistoryQuery{
		Since: base.Add(time.Hour),
		Until: base.AddDate(0, 0, 2),
	})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "hb", ranged[0].ID)

	limited, err := db.ListHistory(ctx, 1, workout.HistoryQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

// TestSQLiteBestRecords verifies upsert replaces and delete clears.
func TestSQLiteBestRecords(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	d := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.UpsertBestRecord(ctx, 1, "Bench", models.BestRecord{Weight: 80, Reps: 5, Date: d}))
	require.NoError(t, db.UpsertBestRecord(ctx, 1, "Bench", models.BestRecord{Weight: 85, Reps: 3, Date: d}))
	require.NoError(t, db.UpsertBestRecord(ctx, 2, "Squat", models.BestRecord{Weight: 100, Reps: 5, Date: d}))

	snap, err := db.ListBestRecords(ctx, 1)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, 85.0, snap["Bench"].Weight)
	assert.Equal(t, 3, snap["Bench"].Reps)
	assert.True(t, snap["Bench"].Date.Equal(d))

	require.NoError(t, db.DeleteAllBestRecords(ctx, 1))
	snap, err = db.ListBestRecords(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, snap)

	other, _ := db.ListBestRecords(ctx, 2)
	assert.Len(t, other, 1)
}

// TestSQLiteCatalogOwnership verifies unowned library items are editable by
// anyone, foreign items are not, and users only see their own items.
func TestSQLiteCatalogOwnership(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()
	factor := 0.5

	lib, err := db.CreateCatalogItem(ctx, 0, models.CatalogItem{Name: "Bench Press", PrimaryMuscle: "Pecho"})
	require.NoError(t, err)
	assert.Nil(t, lib.OwnerID)

	mine, err := db.CreateCatalogItem(ctx, 1, models.CatalogItem{
		Name: "Cable Fly", PrimaryMuscle: "Pecho", SecondaryMuscles: []string{"Hombros"},
		SecondaryFactor: &factor, TrackingMode: models.TrackReps,
	})
	require.NoError(t, err)
	_, err = db.CreateCatalogItem(ctx, 2, models.CatalogItem{Name: "Theirs"})
	require.NoError(t, err)

	items, err := db.ListCatalog(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Bench Press", items[0].Name)
	assert.Equal(t, []string{"Hombros"}, items[1].SecondaryMuscles)
	require.NotNil(t, items[1].SecondaryFactor)
	assert.Equal(t, 0.5, *items[1].SecondaryFactor)

	lib.Name = "Renamed"
	renamed, err := db.UpdateCatalogItem(ctx, 1, lib)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)
	assert.Nil(t, renamed.OwnerID)

	_, err = db.UpdateCatalogItem(ctx, 2, mine)
	assert.ErrorIs(t, err, models.ErrForbidden)

	mine.RestSeconds = 45
	updated, err := db.UpdateCatalogItem(ctx, 1, mine)
	require.NoError(t, err)
	assert.Equal(t, 45, updated.RestSeconds)

	_, err = db.GetCatalogItem(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCatalogOwner verifies both SQL backends store library items without an
// owner instead of a dangling user 0.
func TestCatalogOwner(t *testing.T) {
	assert.Nil(t, catalogOwner(0))
	assert.Nil(t, catalogOwner(-1))
	owner := catalogOwner(3)
	require.NotNil(t, owner)
	assert.Equal(t, 3, *owner)
}

// TestSQLiteRoutines verifies routines round-trip their exercise plan.
func TestSQLiteRoutines(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	r, err := db.CreateRoutine(ctx, 1, models.Routine{
		Name: "Legs",
		Exercises: []models.RoutineExercise{
			{Exercise: models.CatalogItem{Name: "Squat"}, Sets: 4, Reps: 6, Weight: 100},
		},
	})
	require.NoError(t, err)

	got, err := db.GetRoutine(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Legs", got.Name)
	require.Len(t, got.Exercises, 1)
	assert.Equal(t, 4, got.Exercises[0].Sets)

	list, err := db.ListRoutines(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, list)
}

// TestSQLiteUsersAndImportLogs covers user upsert, bodyweight and import logs.
func TestSQLiteUsersAndImportLogs(t *testing.T) {
	db := openTestSQLite(t)
	ctx := context.Background()

	id, err := db.GetOrCreateUser(ctx, "ana@example.com", "Ana")
	require.NoError(t, err)
	again, err := db.GetOrCreateUser(ctx, "ana@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	kg, err := db.Bodyweight(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, kg)
	require.NoError(t, db.SetBodyweight(ctx, id, 72.5))
	kg, _ = db.Bodyweight(ctx, id)
	assert.Equal(t, 72.5, kg)

	logID, err := db.InsertImportLog(ctx, ImportLog{UserID: id, Source: "alpha", Status: ImportRunning})
	require.NoError(t, err)
	ms := 120
	require.NoError(t, db.UpdateImportLog(ctx, logID, ImportLog{
		Status: ImportSuccess, RecordsReceived: 3, RecordsInserted: 2, DurationMs: &ms,
	}))

	logs, err := db.QueryImportLogs(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ImportSuccess, logs[0].Status)
	assert.Equal(t, 2, logs[0].RecordsInserted)
	require.NotNil(t, logs[0].DurationMs)
	assert.Equal(t, 120, *logs[0].DurationMs)
}

// TestOpenSQLiteDriver verifies Open selects SQLite by driver and rejects
// unknown drivers.
func TestOpenSQLiteDriver(t *testing.T) {
	ctx := context.Background()
	b, closeFn, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"}, "")
	require.NoError(t, err)
	defer closeFn()

	id, err := b.GetOrCreateUser(ctx, "local", "Local Dev User")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	_, _, err = Open(ctx, config.DatabaseConfig{Driver: "mysql"}, "")
	assert.Error(t, err)
}
