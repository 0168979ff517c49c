package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/workout"
)

// DataStats holds aggregate statistics about a user's training history.
type DataStats struct {
	TotalSessions  int64             `json:"total_sessions"`
	TotalSets      int64             `json:"total_sets"`
	TotalVolume    float64           `json:"total_volume"`
	TotalMinutes   int64             `json:"total_minutes"`
	EarliestData   *time.Time        `json:"earliest_data"`
	LatestData     *time.Time        `json:"latest_data"`
	SessionsByName []SessionNameStat `json:"sessions_by_name"`
	BySource       map[string]int64  `json:"by_source"`
}

// SessionNameStat holds summary stats for sessions sharing a name.
type SessionNameStat struct {
	Name         string  `json:"name"`
	Count        int64   `json:"count"`
	TotalMinutes int64   `json:"total_minutes"`
	TotalVolume  float64 `json:"total_volume"`
}

// GetDataStats aggregates a user's history from any history store.
func GetDataStats(ctx context.Context, store workout.HistoryStore, userID int) (*DataStats, error) {
	history, err := store.ListHistory(ctx, userID, workout.HistoryQuery{})
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return summarize(history), nil
}

// RecordSource is what PersonalRecords reads from.
type RecordSource interface {
	workout.HistoryStore
	ListCatalog(ctx context.Context, userID int) ([]models.CatalogItem, error)
}

// PersonalRecords derives the user's record rows from full history, the
// catalog and the best-record snapshot.
func PersonalRecords(ctx context.Context, src RecordSource, userID int) ([]records.Row, error) {
	history, err := src.ListHistory(ctx, userID, workout.HistoryQuery{})
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	catalog, err := src.ListCatalog(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	snapshot, err := src.ListBestRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading best records: %w", err)
	}
	return records.Derive(history, catalog, snapshot), nil
}

func summarize(history []models.HistoryRecord) *DataStats {
	stats := &DataStats{BySource: map[string]int64{}}
	byName := map[string]*SessionNameStat{}

	for _, rec := range history {
		stats.TotalSessions++
		stats.TotalVolume += rec.TotalVolume
		stats.TotalMinutes += int64(rec.DurationMinutes)
		stats.BySource[rec.Source]++
		for _, ex := range rec.Exercises {
			stats.TotalSets += int64(ex.CompletedSeries())
		}

		d := rec.Date
		if stats.EarliestData == nil || d.Before(*stats.EarliestData) {
			stats.EarliestData = &d
		}
		if stats.LatestData == nil || d.After(*stats.LatestData) {
			stats.LatestData = &d
		}

		s, ok := byName[rec.Name]
		if !ok {
			s = &SessionNameStat{Name: rec.Name}
			byName[rec.Name] = s
		}
		s.Count++
		s.TotalMinutes += int64(rec.DurationMinutes)
		s.TotalVolume += rec.TotalVolume
	}

	for _, s := range byName {
		stats.SessionsByName = append(stats.SessionsByName, *s)
	}
	sort.Slice(stats.SessionsByName, func(i, j int) bool {
		a, b := stats.SessionsByName[i], stats.SessionsByName[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Name < b.Name
	})
	return stats
}
