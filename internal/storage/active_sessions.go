package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/claude/liftlog/internal/workout"
)

// UpsertActiveSession stores the user's session snapshot. The write is
// rejected with workout.ErrStaleSnapshot unless version is newer than the
// stored one.
func (db *DB) UpsertActiveSession(ctx context.Context, userID int, snapshot []byte, version int64) error {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO active_sessions (user_id, snapshot, version, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
			SET snapshot = EXCLUDED.snapshot, version = EXCLUDED.version, updated_at = NOW()
			WHERE active_sessions.version < EXCLUDED.version
	`, userID, snapshot, version)
	if err != nil {
		return fmt.Errorf("upserting active session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d version %d: %w", userID, version, workout.ErrStaleSnapshot)
	}
	return nil
}

// GetActiveSession returns the stored snapshot, if any.
func (db *DB) GetActiveSession(ctx context.Context, userID int) ([]byte, bool, error) {
	var data []byte
	err := db.Pool.QueryRow(ctx,
		`SELECT snapshot FROM active_sessions WHERE user_id = $1`, userID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying active session: %w", err)
	}
	return data, true, nil
}

// DeleteActiveSession removes the user's session. Deleting nothing is not an error.
func (db *DB) DeleteActiveSession(ctx context.Context, userID int) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM active_sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting active session: %w", err)
	}
	return nil
}
