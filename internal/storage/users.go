package storage

import (
	"context"
	"fmt"
)

// GetOrCreateUser finds or creates a user by Tailscale login name.
// Returns the user ID. Updates last_seen and display_name on each call.
func (db *DB) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (login, display_name)
		VALUES ($1, $2)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = NOW(), display_name = COALESCE(NULLIF($2, ''), users.display_name)
		RETURNING id
	`, login, displayName).Scan(&id)
	return id, err
}

// Bodyweight returns the user's recorded bodyweight in kg, 0 if unset.
func (db *DB) Bodyweight(ctx context.Context, userID int) (float64, error) {
	var kg float64
	err := db.Pool.QueryRow(ctx, `SELECT bodyweight_kg FROM users WHERE id = $1`, userID).Scan(&kg)
	if err != nil {
		return 0, fmt.Errorf("querying bodyweight: %w", err)
	}
	return kg, nil
}

// SetBodyweight records the user's bodyweight in kg.
func (db *DB) SetBodyweight(ctx context.Context, userID int, kg float64) error {
	if _, err := db.Pool.Exec(ctx, `UPDATE users SET bodyweight_kg = $2 WHERE id = $1`, userID, kg); err != nil {
		return fmt.Errorf("updating bodyweight: %w", err)
	}
	return nil
}
