package muscles

import (
	"math"
	"sort"
	"time"

	"github.com/claude/liftlog/internal/models"
)

// DefaultSecondaryFactor applies when an exercise lists secondary muscles
// without a factor of its own.
const DefaultSecondaryFactor = 0.35

// Distribution maps a canonical muscle key to weighted series.
type Distribution map[string]float64

// Add accumulates series for a muscle name after canonicalization. A blank
// name is counted under Unassigned.
func (d Distribution) Add(muscle string, series float64) {
	if series == 0 {
		return
	}
	key, _ := Canonical(muscle)
	if key == "" {
		key = Unassigned
	}
	d[key] += series
}

// Total sums every bucket.
func (d Distribution) Total() float64 {
	var t float64
	for _, v := range d {
		t += v
	}
	return t
}

// Sorted returns the keys by descending load, name as tie-break.
func (d Distribution) Sorted() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if d[keys[i]] != d[keys[j]] {
			return d[keys[i]] > d[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func clampFactor(f float64) float64 {
	if math.IsNaN(f) {
		return DefaultSecondaryFactor
	}
	return math.Min(1, math.Max(0, f))
}

// Allocate splits seriesCount between a primary muscle and its secondaries.
// A nil factor defaults to DefaultSecondaryFactor when secondaries exist.
func Allocate(primary string, secondaries []string, factor *float64, seriesCount float64) Distribution {
	d := Distribution{}
	if seriesCount <= 0 {
		return d
	}

	var named []string
	for _, s := range secondaries {
		if key, _ := Canonical(s); key != "" {
			named = append(named, s)
		}
	}

	f := 0.0
	if len(named) > 0 {
		f = DefaultSecondaryFactor
		if factor != nil {
			f = *factor
		}
		f = clampFactor(f)
	}
	if f == 0 {
		d.Add(primary, seriesCount)
		return d
	}

	d.Add(primary, seriesCount*(1-f))
	share := seriesCount * f / float64(len(named))
	for _, s := range named {
		d.Add(s, share)
	}
	return d
}

// ForExercise allocates one entry's completed working sets.
func ForExercise(ex models.ExerciseEntry) Distribution {
	return Allocate(ex.PrimaryMuscle, ex.SecondaryMuscles, ex.SecondaryFactor, float64(ex.CompletedSeries()))
}

// Distribute sums ForExercise over exercises.
func Distribute(exercises []models.ExerciseEntry) Distribution {
	d := Distribution{}
	for _, ex := range exercises {
		d = Merge(d, ForExercise(ex))
	}
	return d
}

// Merge returns the bucket-wise sum of a and b; neither input is modified.
func Merge(a, b Distribution) Distribution {
	out := make(Distribution, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

// Bucket is the period width of ByPeriod.
type Bucket string

const (
	BucketWeek  Bucket = "week"
	BucketMonth Bucket = "month"
)

// ParseBucket returns BucketWeek for anything but "month".
func ParseBucket(s string) Bucket {
	if Bucket(s) == BucketMonth {
		return BucketMonth
	}
	return BucketWeek
}

// Period is one bucket of ByPeriod.
type Period struct {
	Start        time.Time    `json:"start"`
	Sessions     int          `json:"sessions"`
	Distribution Distribution `json:"distribution"`
}

// periodStart truncates t to the start of its ISO week (Monday) or month,
// in t's location.
func periodStart(t time.Time, b Bucket) time.Time {
	y, m, d := t.Date()
	if b == BucketMonth {
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	}
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// ByPeriod groups history into week or month buckets ordered by start.
// Periods without sessions are omitted.
func ByPeriod(history []models.HistoryRecord, b Bucket) []Period {
	idx := make(map[int64]*Period)
	for _, rec := range history {
		start := periodStart(rec.Date, b)
		p, ok := idx[start.UnixNano()]
		if !ok {
			p = &Period{Start: start, Distribution: Distribution{}}
			idx[start.UnixNano()] = p
		}
		p.Sessions++
		p.Distribution = Merge(p.Distribution, Distribute(rec.Exercises))
	}

	out := make([]Period, 0, len(idx))
	for _, p := range idx {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Summary is the distribution of a history window, in total and per period.
type Summary struct {
	Bucket      Bucket       `json:"bucket"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Sessions    int          `json:"sessions"`
	Total       Distribution `json:"total"`
	TotalSeries float64      `json:"total_series"`
	Periods     []Period     `json:"periods"`
}

// Summarize builds the Summary of history, which should already be limited
// to [start, end).
func Summarize(history []models.HistoryRecord, b Bucket, start, end time.Time) Summary {
	out := Summary{
		Bucket:   b,
		Start:    start,
		End:      end,
		Sessions: len(history),
		Total:    Distribution{},
		Periods:  ByPeriod(history, b),
	}
	for _, rec := range history {
		out.Total = Merge(out.Total, Distribute(rec.Exercises))
	}
	out.TotalSeries = out.Total.Total()
	return out
}
