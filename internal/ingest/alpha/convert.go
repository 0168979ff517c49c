package alpha

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/workout"
)

// importNamespace seeds deterministic ids so re-importing an export maps
// to the same history records.
var importNamespace = uuid.MustParse("6b1f0f7e-3d4c-4f3a-9a57-2a1c5e0b9d41")

// Catalog resolves an exercise name to a catalog definition.
type Catalog map[string]models.CatalogItem

// NewCatalog indexes items by normalized name.
func NewCatalog(items []models.CatalogItem) Catalog {
	c := make(Catalog, len(items))
	for _, it := range items {
		c[models.NormalizeName(it.Name)] = it
	}
	return c
}

func (c Catalog) lookup(name string) (models.CatalogItem, bool) {
	it, ok := c[models.NormalizeName(name)]
	return it, ok
}

// ToHistory converts parsed sessions into history records for userID.
// Warmups are kept but flagged, "+X" weights mark the exercise as
// including bodyweight, and every set is recorded as completed.
func ToHistory(sessions []Session, userID int, catalog Catalog, bodyweightKg float64) []models.HistoryRecord {
	out := make([]models.HistoryRecord, 0, len(sessions))
	for _, s := range sessions {
		recID := uuid.NewSHA1(importNamespace,
			[]byte(fmt.Sprintf("%d|%s|%s", userID, s.Date.Format(time.RFC3339), s.Name)))

		exercises := make([]models.ExerciseEntry, 0, len(s.Exercises))
		for _, ex := range s.Exercises {
			exercises = append(exercises, toEntry(recID, ex, catalog))
		}

		out = append(out, models.HistoryRecord{
			ID:              recID.String(),
			UserID:          userID,
			Name:            s.Name,
			Date:            s.Date,
			DurationMinutes: int(math.Round(s.Duration.Minutes())),
			TotalVolume:     workout.Volume(exercises, bodyweightKg),
			BodyweightKg:    bodyweightKg,
			Source:          models.SourceAlpha,
			Exercises:       exercises,
		})
	}
	return out
}

func toEntry(recID uuid.UUID, ex Exercise, catalog Catalog) models.ExerciseEntry {
	entryID := uuid.NewSHA1(recID, []byte(fmt.Sprintf("%d|%s", ex.Number, ex.Name)))
	entry := models.ExerciseEntry{
		ID:           entryID.String(),
		Name:         ex.Name,
		TrackingMode: models.TrackReps,
		Notes:        ex.Equipment,
	}
	if it, ok := catalog.lookup(ex.Name); ok {
		entry.CatalogID = it.ID
		entry.Name = it.Name
		entry.PrimaryMuscle = it.PrimaryMuscle
		entry.SecondaryMuscles = append([]string(nil), it.SecondaryMuscles...)
		entry.SecondaryFactor = it.SecondaryFactor
		entry.RestSeconds = it.RestSeconds
		entry.IncludesBodyweight = it.IncludesBodyweight
		if it.TrackingMode != "" {
			entry.TrackingMode = it.TrackingMode
		}
	}

	for i, set := range ex.Sets {
		if set.IsBodyweightPlus {
			entry.IncludesBodyweight = true
		}
		entry.Sets = append(entry.Sets, models.Set{
			ID:        uuid.NewSHA1(entryID, []byte(fmt.Sprint(i))).String(),
			Reps:      set.Reps,
			Weight:    set.WeightKg,
			Completed: true,
			IsWarmup:  set.IsWarmup,
		})
	}
	return entry
}
