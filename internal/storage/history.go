package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
)

// AppendHistoryRecord inserts a finished or imported session. Re-inserting
// an existing id is a no-op.
func (db *DB) AppendHistoryRecord(ctx context.Context, rec models.HistoryRecord) error {
	exercises, err := json.Marshal(rec.Exercises)
	if err != nil {
		return fmt.Errorf("encoding exercises: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO history_records (id, user_id, routine_id, name, date, duration_minutes,
		 total_volume, bodyweight_kg, source, exercises)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.UserID, rec.RoutineID, rec.Name, rec.Date, rec.DurationMinutes,
		rec.TotalVolume, rec.BodyweightKg, rec.Source, exercises)
	if err != nil {
		return fmt.Errorf("inserting history record: %w", err)
	}
	return nil
}

// historyFilter builds the WHERE clause shared by the SQL stores. ph renders
// the n-th placeholder.
func historyFilter(userID int, q workout.HistoryQuery, ph func(n int) string) (string, []any) {
	conds := []string{"user_id = " + ph(1)}
	args := []any{userID}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, "date >= "+ph(len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		conds = append(conds, "date < "+ph(len(args)))
	}
	return strings.Join(conds, " AND "), args
}

// ListHistory returns the user's records, newest first.
func (db *DB) ListHistory(ctx context.Context, userID int, q workout.HistoryQuery) ([]models.HistoryRecord, error) {
	where, args := historyFilter(userID, q, func(n int) string { return fmt.Sprintf("$%d", n) })
	query := `SELECT id, user_id, routine_id, name, date, duration_minutes, total_volume,
		bodyweight_kg, source, exercises FROM history_records WHERE ` + where + ` ORDER BY date DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var result []models.HistoryRecord
	for rows.Next() {
		var (
			rec       models.HistoryRecord
			exercises []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RoutineID, &rec.Name, &rec.Date,
			&rec.DurationMinutes, &rec.TotalVolume, &rec.BodyweightKg, &rec.Source, &exercises); err != nil {
			return nil, fmt.Errorf("scanning history record: %w", err)
		}
		rec.Exercises = decodeExercises(exercises)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// decodeExercises tolerates malformed stored JSON; history stays listable.
func decodeExercises(data []byte) []models.ExerciseEntry {
	var out []models.ExerciseEntry
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return []models.ExerciseEntry{}
	}
	return out
}
