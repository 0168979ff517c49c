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

// ListCatalog returns library items (no owner) and the user's own items, by name.
func (db *DB) ListCatalog(ctx context.Context, userID int) ([]models.CatalogItem, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, owner_id, name, primary_muscle, secondary_muscles, secondary_factor,
		 tracking_mode, includes_bodyweight, rest_seconds, created_at
		 FROM catalog_items WHERE owner_id IS NULL OR owner_id = $1
		 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var result []models.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func scanCatalogItem(row pgx.Row) (models.CatalogItem, error) {
	var (
		item        models.CatalogItem
		secondaries []byte
		mode        string
	)
	if err := row.Scan(&item.ID, &item.OwnerID, &item.Name, &item.PrimaryMuscle, &secondaries,
		&item.SecondaryFactor, &mode, &item.IncludesBodyweight, &item.RestSeconds, &item.CreatedAt); err != nil {
		return item, fmt.Errorf("scanning catalog item: %w", err)
	}
	item.TrackingMode = models.TrackingMode(mode)
	_ = json.Unmarshal(secondaries, &item.SecondaryMuscles)
	return item, nil
}

// GetCatalogItem returns one item by id.
func (db *DB) GetCatalogItem(ctx context.Context, id string) (models.CatalogItem, error) {
	item, err := scanCatalogItem(db.Pool.QueryRow(ctx,
		`SELECT id, owner_id, name, primary_muscle, secondary_muscles, secondary_factor,
		 tracking_mode, includes_bodyweight, rest_seconds, created_at
		 FROM catalog_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return item, fmt.Errorf("catalog item %s: %w", id, ErrNotFound)
	}
	return item, err
}

// catalogOwner is the owner stored for an item created by userID; a zero
// userID creates an unowned library item.
func catalogOwner(userID int) *int {
	if userID <= 0 {
		return nil
	}
	return &userID
}

// CreateCatalogItem inserts an item owned by userID and returns it with its id.
func (db *DB) CreateCatalogItem(ctx context.Context, userID int, item models.CatalogItem) (models.CatalogItem, error) {
	item.ID = uuid.NewString()
	item.OwnerID = catalogOwner(userID)
	item.CreatedAt = time.Now().UTC()
	secondaries, _ := json.Marshal(item.SecondaryMuscles)
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO catalog_items (id, owner_id, name, primary_muscle, secondary_muscles,
		 secondary_factor, tracking_mode, includes_bodyweight, rest_seconds, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		item.ID, item.OwnerID, item.Name, item.PrimaryMuscle, secondaries, item.SecondaryFactor,
		string(item.TrackingMode), item.IncludesBodyweight, item.RestSeconds, item.CreatedAt)
	if err != nil {
		return item, fmt.Errorf("inserting catalog item: %w", err)
	}
	return item, nil
}

// UpdateCatalogItem replaces an item's definition after checking ownership.
// Ownership itself never changes.
func (db *DB) UpdateCatalogItem(ctx context.Context, userID int, item models.CatalogItem) (models.CatalogItem, error) {
	existing, err := db.GetCatalogItem(ctx, item.ID)
	if err != nil {
		return item, err
	}
	if !models.CanEdit(existing.OwnerID, userID) {
		return item, fmt.Errorf("catalog item %s: %w", item.ID, models.ErrForbidden)
	}
	item.OwnerID, item.CreatedAt = existing.OwnerID, existing.CreatedAt
	secondaries, _ := json.Marshal(item.SecondaryMuscles)
	_, err = db.Pool.Exec(ctx,
		`UPDATE catalog_items SET name = $2, primary_muscle = $3, secondary_muscles = $4,
		 secondary_factor = $5, tracking_mode = $6, includes_bodyweight = $7, rest_seconds = $8
		 WHERE id = $1`,
		item.ID, item.Name, item.PrimaryMuscle, secondaries, item.SecondaryFactor,
		string(item.TrackingMode), item.IncludesBodyweight, item.RestSeconds)
	if err != nil {
		return item, fmt.Errorf("updating catalog item %s: %w", item.ID, err)
	}
	return item, nil
}
