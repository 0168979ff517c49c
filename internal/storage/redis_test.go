package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/liftlog/internal/workout"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// TestRedisSessionsVersions verifies the WATCH-guarded upsert rejects
// stale versions and expires keys after the ttl.
func TestRedisSessionsVersions(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedisSessions(client, time.Hour, "")
	ctx := context.Background()

	_, found, err := s.GetActiveSession(ctx, 7)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.UpsertActiveSession(ctx, 7, []byte(`{"n":1}`), 1))
	require.NoError(t, s.UpsertActiveSession(ctx, 7, []byte(`{"n":3}`), 3))
	assert.ErrorIs(t, s.UpsertActiveSession(ctx, 7, []byte(`{"n":2}`), 2), workout.ErrStaleSnapshot)

	data, found, err := s.GetActiveSession(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"n":3}`, string(data))
	assert.Equal(t, "3", mr.HGet("liftlog:session:7", "version"))

	mr.FastForward(2 * time.Hour)
	_, found, _ = s.GetActiveSession(ctx, 7)
	assert.False(t, found, "session should expire")
}

// TestSplitStore runs a runtime against Redis sessions and SQLite history.
func TestSplitStore(t *testing.T) {
	_, client := newTestRedis(t)
	db := openTestSQLite(t)
	store := Split(NewRedisSessions(client, 0, "test:"), db)
	ctx := context.Background()

	rt := workout.NewRuntime(1, store, discardTestLogger())
	require.NoError(t, rt.Start(ctx, workout.StartSource{Name: "Split"}, nil))

	raw, err := client.HGet(ctx, "test:1", "snapshot").Bytes()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	_, err = rt.Finish(ctx)
	require.NoError(t, err)

	history, err := db.ListHistory(ctx, 1, workout.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Split", history[0].Name)

	_, found, err := store.GetActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func discardTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
