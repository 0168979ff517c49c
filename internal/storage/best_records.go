package storage

import (
	"context"
	"fmt"

	"github.com/claude/liftlog/internal/models"
)

// UpsertBestRecord replaces the snapshot entry for one exercise.
func (db *DB) UpsertBestRecord(ctx context.Context, userID int, name string, best models.BestRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO best_records (user_id, exercise_name, weight, reps, date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, exercise_name) DO UPDATE
			SET weight = EXCLUDED.weight, reps = EXCLUDED.reps, date = EXCLUDED.date
	`, userID, name, best.Weight, best.Reps, best.Date)
	if err != nil {
		return fmt.Errorf("upserting best record %q: %w", name, err)
	}
	return nil
}

// ListBestRecords returns the user's snapshot.
func (db *DB) ListBestRecords(ctx context.Context, userID int) (models.BestSnapshot, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT exercise_name, weight, reps, date FROM best_records WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying best records: %w", err)
	}
	defer rows.Close()

	snap := models.BestSnapshot{}
	for rows.Next() {
		var (
			name string
			b    models.BestRecord
		)
		if err := rows.Scan(&name, &b.Weight, &b.Reps, &b.Date); err != nil {
			return nil, fmt.Errorf("scanning best record: %w", err)
		}
		snap[name] = b
	}
	return snap, rows.Err()
}

// DeleteAllBestRecords clears the snapshot so records are recomputed from history.
func (db *DB) DeleteAllBestRecords(ctx context.Context, userID int) error {
	if _, err := db.Pool.Exec(ctx, `DELETE FROM best_records WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deleting best records: %w", err)
	}
	return nil
}
