package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/liftlog/internal/models"
)

// ListRoutines returns library routines and the user's own, by name.
func (db *DB) ListRoutines(ctx context.Context, userID int) ([]models.Routine, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, owner_id, name, exercises, created_at FROM routines
		 WHERE owner_id IS NULL OR owner_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var result []models.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanRoutine(row pgx.Row) (models.Routine, error) {
	var (
		r         models.Routine
		exercises []byte
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &exercises, &r.CreatedAt); err != nil {
		return r, fmt.Errorf("scanning routine: %w", err)
	}
	if err := json.Unmarshal(exercises, &r.Exercises); err != nil {
		r.Exercises = nil
	}
	return r, nil
}

// GetRoutine returns one routine by id.
func (db *DB) GetRoutine(ctx context.Context, id string) (models.Routine, error) {
	r, err := scanRoutine(db.Pool.QueryRow(ctx,
		`SELECT id, owner_id, name, exercises, created_at FROM routines WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	return r, err
}

// CreateRoutine inserts a routine owned by userID.
func (db *DB) CreateRoutine(ctx context.Context, userID int, r models.Routine) (models.Routine, error) {
	r.ID = uuid.NewString()
	r.OwnerID = &userID
	r.CreatedAt = time.Now().UTC()
	exercises, err := json.Marshal(r.Exercises)
	if err != nil {
		return r, fmt.Errorf("encoding routine exercises: %w", err)
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO routines (id, owner_id, name, exercises, created_at) VALUES ($1,$2,$3,$4,$5)`,
		r.ID, r.OwnerID, r.Name, exercises, r.CreatedAt)
	if err != nil {
		return r, fmt.Errorf("inserting routine: %w", err)
	}
	return r, nil
}
