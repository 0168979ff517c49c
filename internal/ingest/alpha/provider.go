package alpha

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/claude/liftlog/internal/ingest"
	"github.com/claude/liftlog/internal/workout"
)

// Provider imports Alpha Progression CSV exports into workout history.
type Provider struct {
	store workout.HistoryStore
	log   *slog.Logger
}

// NewProvider creates a new Alpha Progression ingest provider.
func NewProvider(store workout.HistoryStore, log *slog.Logger) *Provider {
	return &Provider{store: store, log: log}
}

// Ingest parses an export and appends every session not already imported.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, userID int, catalog Catalog, bodyweightKg float64) (*ingest.Result, error) {
	sessions, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	recs := ToHistory(sessions, userID, catalog, bodyweightKg)

	result := &ingest.Result{RecordsReceived: len(recs)}
	if len(recs) == 0 {
		result.Message = "no sessions found"
		return result, nil
	}

	since, until := recs[0].Date, recs[0].Date
	for _, rec := range recs {
		if rec.Date.Before(since) {
			since = rec.Date
		}
		if rec.Date.After(until) {
			until = rec.Date
		}
		for _, ex := range rec.Exercises {
			result.SetsReceived += len(ex.Sets)
		}
	}
	existing, err := p.store.ListHistory(ctx, userID, workout.HistoryQuery{Since: since, Until: until.Add(time.Second)})
	if err != nil {
		return nil, fmt.Errorf("loading existing history: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, rec := range existing {
		seen[rec.ID] = true
	}

	for _, rec := range recs {
		if seen[rec.ID] {
			result.RecordsSkipped++
			continue
		}
		if err := p.store.AppendHistoryRecord(ctx, rec); err != nil {
			return result, fmt.Errorf("appending session %s: %w", rec.Date.Format("2006-01-02"), err)
		}
		seen[rec.ID] = true
		result.RecordsInserted++
	}

	p.log.Info("alpha import",
		"user_id", userID,
		"received", result.RecordsReceived,
		"inserted", result.RecordsInserted,
		"skipped", result.RecordsSkipped,
	)
	return result, nil
}
