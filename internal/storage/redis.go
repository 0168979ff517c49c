package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/claude/liftlog/internal/workout"
)

var _ workout.ActiveSessionStore = (*RedisSessions)(nil)

// RedisSessions keeps active-session snapshots in Redis hashes
// ({version, snapshot}) so several server instances can share them.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSessions returns a session store using client. A zero ttl keeps
// keys forever.
func NewRedisSessions(client *redis.Client, ttl time.Duration, prefix string) *RedisSessions {
	if prefix == "" {
		prefix = "liftlog:session:"
	}
	return &RedisSessions{client: client, ttl: ttl, prefix: prefix}
}

func (s *RedisSessions) key(userID int) string {
	return s.prefix + strconv.Itoa(userID)
}

// UpsertActiveSession writes the snapshot under WATCH unless the stored
// version is already at or past version.
func (s *RedisSessions) UpsertActiveSession(ctx context.Context, userID int, snapshot []byte, version int64) error {
	key := s.key(userID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "version").Int64()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("reading version: %w", err)
		case cur >= version:
			return fmt.Errorf("user %d version %d: %w", userID, version, workout.ErrStaleSnapshot)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "version", version, "snapshot", snapshot)
			if s.ttl > 0 {
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("user %d version %d: concurrent write: %w", userID, version, workout.ErrStaleSnapshot)
	}
	if err != nil && !errors.Is(err, workout.ErrStaleSnapshot) {
		return fmt.Errorf("saving session: %w", err)
	}
	return err
}

// GetActiveSession returns the stored snapshot, if any.
func (s *RedisSessions) GetActiveSession(ctx context.Context, userID int) ([]byte, bool, error) {
	data, err := s.client.HGet(ctx, s.key(userID), "snapshot").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting session: %w", err)
	}
	return data, true, nil
}

// DeleteActiveSession removes the user's session.
func (s *RedisSessions) DeleteActiveSession(ctx context.Context, userID int) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
