// Package records derives lifetime personal records from workout history.
package records

import (
	"math"
	"sort"
	"time"

	"github.com/claude/liftlog/internal/models"
)

// E1RM estimates a one-repetition maximum with the Epley formula,
// rounded to the nearest 0.5. Non-positive inputs estimate 0.
func E1RM(weight float64, reps int) float64 {
	if weight <= 0 || reps <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return 0
	}
	return math.Round(weight*(1+float64(reps)/30)*2) / 2
}

// Row is one exercise's lifetime bests. Zero values mean "no record".
type Row struct {
	Key             string              `json:"key"`
	Name            string              `json:"name"`
	CatalogID       string              `json:"catalog_id,omitempty"`
	TrackingMode    models.TrackingMode `json:"tracking_mode"`
	BestE1RM        float64             `json:"best_e1rm,omitempty"`
	BestWeight      float64             `json:"best_weight,omitempty"`
	BestWeightReps  int                 `json:"best_weight_reps,omitempty"`
	E1RMUpdatedAt   time.Time           `json:"e1rm_updated_at,omitzero"`
	BestReps        int                 `json:"best_reps,omitempty"`
	RepsUpdatedAt   time.Time           `json:"reps_updated_at,omitzero"`
	BestTimeSeconds int                 `json:"best_time_seconds,omitempty"`
	TimeUpdatedAt   time.Time           `json:"time_updated_at,omitzero"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func (r *Row) hasAny() bool {
	return r.BestE1RM > 0 || r.BestReps > 0 || r.BestTimeSeconds > 0
}

func (r *Row) touch(at time.Time) {
	if at.After(r.UpdatedAt) {
		r.UpdatedAt = at
	}
}

// The offer methods keep the larger value, and on a tie the earlier date.
func (r *Row) offerE1RM(weight float64, reps int, at time.Time) bool {
	e := E1RM(weight, reps)
	if e < r.BestE1RM || (e == r.BestE1RM && !at.Before(r.E1RMUpdatedAt)) {
		return false
	}
	r.BestE1RM, r.BestWeight, r.BestWeightReps = e, weight, reps
	r.E1RMUpdatedAt = at
	r.touch(at)
	return true
}

func (r *Row) offerReps(reps int, at time.Time) bool {
	if reps < r.BestReps || (reps == r.BestReps && !at.Before(r.RepsUpdatedAt)) {
		return false
	}
	r.BestReps = reps
	r.RepsUpdatedAt = at
	r.touch(at)
	return true
}

func (r *Row) offerTime(seconds int, at time.Time) bool {
	if seconds < r.BestTimeSeconds || (seconds == r.BestTimeSeconds && !at.Before(r.TimeUpdatedAt)) {
		return false
	}
	r.BestTimeSeconds = seconds
	r.TimeUpdatedAt = at
	r.touch(at)
	return true
}

// offerSet folds one counted set into the row according to the exercise mode.
func (r *Row) offerSet(mode models.TrackingMode, set models.Set, at time.Time) {
	if mode == models.TrackTime {
		r.offerTime(set.Reps, at)
		return
	}
	r.offerE1RM(set.Weight, set.Reps, at)
	r.offerReps(set.Reps, at)
}

type catalogIndex map[string]models.CatalogItem

func indexCatalog(catalog []models.CatalogItem) catalogIndex {
	idx := make(catalogIndex, len(catalog))
	for _, item := range catalog {
		key := models.NormalizeName(item.Name)
		if _, dup := idx[key]; !dup {
			idx[key] = item
		}
	}
	return idx
}

type builder struct {
	rows    map[string]*Row
	catalog catalogIndex
}

func newBuilder(catalog []models.CatalogItem) *builder {
	return &builder{rows: make(map[string]*Row), catalog: indexCatalog(catalog)}
}

func (b *builder) row(name string) *Row {
	key := models.NormalizeName(name)
	if r, ok := b.rows[key]; ok {
		return r
	}
	r := &Row{Key: key, Name: name, TrackingMode: models.TrackReps}
	if item, ok := b.catalog[key]; ok {
		r.Name = item.Name
		r.CatalogID = item.ID
		if item.TrackingMode == models.TrackTime {
			r.TrackingMode = models.TrackTime
		}
	}
	b.rows[key] = r
	return r
}

// seed offers snapshot entries to their rows. It runs after fold so a row's
// tracking mode, from the catalog or history, decides how Reps is read.
func (b *builder) seed(snapshot models.BestSnapshot) {
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if models.NormalizeName(name) == "" {
			continue
		}
		best := snapshot[name]
		r := b.row(name)
		if r.TrackingMode == models.TrackTime {
			r.offerTime(best.Reps, best.Date)
			continue
		}
		r.offerE1RM(best.Weight, best.Reps, best.Date)
		r.offerReps(best.Reps, best.Date)
	}
}

func (b *builder) fold(history []models.HistoryRecord) {
	for _, rec := range history {
		for _, ex := range rec.Exercises {
			if models.NormalizeName(ex.Name) == "" {
				continue
			}
			r := b.row(ex.Name)
			mode := ex.Mode()
			if ex.TrackingMode == "" {
				mode = r.TrackingMode
			} else if mode == models.TrackTime {
				r.TrackingMode = models.TrackTime
			}
			for _, set := range ex.Sets {
				if set.Counts() {
					r.offerSet(mode, set, rec.Date)
				}
			}
		}
	}
}

func (b *builder) result() []Row {
	out := make([]Row, 0, len(b.rows))
	for _, r := range b.rows {
		if r.hasAny() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Derive builds one Row per exercise from the persisted snapshot and the full
// history. Only maxima matter, so history order is irrelevant, and each
// metric keeps the date of the session that produced it.
func Derive(history []models.HistoryRecord, catalog []models.CatalogItem, snapshot models.BestSnapshot) []Row {
	b := newBuilder(catalog)
	b.fold(history)
	b.seed(snapshot)
	return b.result()
}
