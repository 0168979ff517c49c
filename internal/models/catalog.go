package models

import (
	"errors"
	"time"
)

// UnownedEditable is the ownership policy for records without an owner
// (library and seed data): anyone may edit them.
const UnownedEditable = true

// ErrForbidden is returned when a user edits a record owned by someone else.
var ErrForbidden = errors.New("not the owner of this record")

// CanEdit applies the ownership policy.
func CanEdit(owner *int, userID int) bool {
	if owner == nil {
		return UnownedEditable
	}
	return *owner == userID
}

// CatalogItem is an exercise definition users pick from.
type CatalogItem struct {
	ID                 string       `json:"id"`
	OwnerID            *int         `json:"owner_id,omitempty"`
	Name               string       `json:"name"`
	PrimaryMuscle      string       `json:"primary_muscle"`
	SecondaryMuscles   []string     `json:"secondary_muscles,omitempty"`
	SecondaryFactor    *float64     `json:"secondary_factor,omitempty"`
	TrackingMode       TrackingMode `json:"tracking_mode"`
	IncludesBodyweight bool         `json:"includes_bodyweight,omitempty"`
	RestSeconds        int          `json:"rest_seconds"`
	CreatedAt          time.Time    `json:"created_at"`
}

// RoutineExercise is one planned exercise with its targets.
type RoutineExercise struct {
	Exercise    CatalogItem `json:"exercise"`
	Sets        int         `json:"sets"`
	Reps        int         `json:"reps"`
	Weight      float64     `json:"weight"`
	RestSeconds int         `json:"rest_seconds,omitempty"`
}

// Routine is an authored workout template.
type Routine struct {
	ID        string            `json:"id"`
	OwnerID   *int              `json:"owner_id,omitempty"`
	Name      string            `json:"name"`
	Exercises []RoutineExercise `json:"exercises"`
	CreatedAt time.Time         `json:"created_at"`
}
