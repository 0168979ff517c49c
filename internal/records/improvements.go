package records

import (
	"time"

	"github.com/claude/liftlog/internal/models"
)

// Metric names the record an improvement beat.
type Metric string

const (
	MetricE1RM Metric = "e1rm"
	MetricReps Metric = "reps"
	MetricTime Metric = "time"
)

// Improvement is one exercise of a finished session that beat its prior best.
type Improvement struct {
	Exercise string    `json:"exercise"`
	Key      string    `json:"key"`
	Metric   Metric    `json:"metric"`
	Previous float64   `json:"previous"`
	Current  float64   `json:"current"`
	Weight   float64   `json:"weight,omitempty"`
	Reps     int       `json:"reps,omitempty"`
	Date     time.Time `json:"date"`
}

// Improvements compares each exercise of rec with the bests derived from
// prior history and the persisted snapshot. At most one Improvement is
// returned per exercise, in session order. An exercise with no prior record
// sets a baseline and is not reported.
func Improvements(prior []models.HistoryRecord, snapshot models.BestSnapshot, rec models.HistoryRecord) []Improvement {
	before := newBuilder(nil)
	for _, ex := range rec.Exercises {
		if ex.Mode() == models.TrackTime && models.NormalizeName(ex.Name) != "" {
			before.row(ex.Name).TrackingMode = models.TrackTime
		}
	}
	before.fold(prior)
	before.seed(snapshot)

	current := newBuilder(nil)
	current.fold([]models.HistoryRecord{rec})

	var out []Improvement
	seen := make(map[string]bool)
	for _, ex := range rec.Exercises {
		key := models.NormalizeName(ex.Name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		prev, ok := before.rows[key]
		cur, curOK := current.rows[key]
		if !ok || !prev.hasAny() || !curOK || !cur.hasAny() {
			continue
		}

		imp := Improvement{Exercise: ex.Name, Key: key, Date: rec.Date}
		switch {
		case ex.Mode() == models.TrackTime:
			if cur.BestTimeSeconds <= prev.BestTimeSeconds {
				continue
			}
			imp.Metric = MetricTime
			imp.Previous, imp.Current = float64(prev.BestTimeSeconds), float64(cur.BestTimeSeconds)
			imp.Reps = cur.BestTimeSeconds
		case cur.BestE1RM > prev.BestE1RM:
			imp.Metric = MetricE1RM
			imp.Previous, imp.Current = prev.BestE1RM, cur.BestE1RM
			imp.Weight, imp.Reps = cur.BestWeight, cur.BestWeightReps
		case cur.BestReps > prev.BestReps:
			imp.Metric = MetricReps
			imp.Previous, imp.Current = float64(prev.BestReps), float64(cur.BestReps)
			imp.Reps = cur.BestReps
		default:
			continue
		}
		out = append(out, imp)
	}
	return out
}

// bestSet picks the set that represents an exercise in the snapshot:
// highest e1RM, then most reps.
func bestSet(ex models.ExerciseEntry) (models.Set, bool) {
	var best models.Set
	found := false
	for _, s := range ex.Sets {
		if !s.Counts() || s.Reps <= 0 {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		if ex.Mode() == models.TrackTime {
			if s.Reps > best.Reps {
				best = s
			}
			continue
		}
		se, be := E1RM(s.Weight, s.Reps), E1RM(best.Weight, best.Reps)
		if se > be || (se == be && s.Reps > best.Reps) {
			best = s
		}
	}
	return best, found
}

func beats(mode models.TrackingMode, cand, cur models.BestRecord) bool {
	if mode == models.TrackTime {
		return cand.Reps > cur.Reps
	}
	ce, ue := E1RM(cand.Weight, cand.Reps), E1RM(cur.Weight, cur.Reps)
	if ce != ue {
		return ce > ue
	}
	return cand.Reps > cur.Reps
}

// SnapshotUpdates returns the snapshot entries rec improves or introduces,
// keyed by the display name already used in the snapshot when one matches.
func SnapshotUpdates(snapshot models.BestSnapshot, rec models.HistoryRecord) map[string]models.BestRecord {
	existing := make(map[string]string, len(snapshot))
	for name := range snapshot {
		key := models.NormalizeName(name)
		if prev, ok := existing[key]; !ok || name < prev {
			existing[key] = name
		}
	}

	updates := make(map[string]models.BestRecord)
	for _, ex := range rec.Exercises {
		key := models.NormalizeName(ex.Name)
		if key == "" {
			continue
		}
		set, ok := bestSet(ex)
		if !ok {
			continue
		}
		cand := models.BestRecord{Weight: set.Weight, Reps: set.Reps, Date: rec.Date}
		if ex.Mode() == models.TrackTime {
			cand.Weight = 0
		}

		name := ex.Name
		if snapName, ok := existing[key]; ok {
			name = snapName
			if !beats(ex.Mode(), cand, snapshot[snapName]) {
				continue
			}
		} else {
			existing[key] = name
		}
		if prev, ok := updates[name]; ok && !beats(ex.Mode(), cand, prev) {
			continue
		}
		updates[name] = cand
	}
	return updates
}
