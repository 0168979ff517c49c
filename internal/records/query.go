package records

import (
	"sort"
	"strings"

	"github.com/claude/liftlog/internal/models"
)

// Type filters rows by the metric they carry.
type Type string

const (
	TypeAll      Type = "all"
	TypeStrength Type = "strength"
	TypeReps     Type = "reps"
	TypeTime     Type = "time"
)

// SortOrder selects the ranking of query results.
type SortOrder string

const (
	// SortMetric ranks by the filtered metric, descending, name as tie-break.
	SortMetric SortOrder = "metric"
	SortRecent SortOrder = "recent"
	SortName   SortOrder = "name"
)

// Options controls Query.
type Options struct {
	Search string
	Type   Type
	Sort   SortOrder
}

// ParseOptions builds Options from raw strings; unknown values fall back to
// TypeAll and SortMetric.
func ParseOptions(search, typ, order string) Options {
	opts := Options{Search: search, Type: TypeAll, Sort: SortMetric}
	switch t := Type(strings.ToLower(strings.TrimSpace(typ))); t {
	case TypeStrength, TypeReps, TypeTime:
		opts.Type = t
	}
	switch s := SortOrder(strings.ToLower(strings.TrimSpace(order))); s {
	case SortRecent, SortName:
		opts.Sort = s
	}
	return opts
}

func (t Type) matches(r Row) bool {
	switch t {
	case TypeStrength:
		return r.BestE1RM > 0
	case TypeReps:
		return r.BestReps > 0
	case TypeTime:
		return r.BestTimeSeconds > 0
	default:
		return true
	}
}

func (t Type) metric(r Row) float64 {
	switch t {
	case TypeReps:
		return float64(r.BestReps)
	case TypeTime:
		return float64(r.BestTimeSeconds)
	default:
		return r.BestE1RM
	}
}

// Query filters and ranks rows. The input slice is not modified.
func Query(rows []Row, opts Options) []Row {
	needle := models.NormalizeName(opts.Search)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if needle != "" && !strings.Contains(r.Key, needle) {
			continue
		}
		if !opts.Type.matches(r) {
			continue
		}
		out = append(out, r)
	}

	byName := func(a, b Row) bool {
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Name < b.Name
	}

	switch opts.Sort {
	case SortName:
		sort.SliceStable(out, func(i, j int) bool { return byName(out[i], out[j]) })
	case SortRecent:
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.After(out[j].UpdatedAt)
			}
			return byName(out[i], out[j])
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			mi, mj := opts.Type.metric(out[i]), opts.Type.metric(out[j])
			if mi != mj {
				return mi > mj
			}
			return byName(out[i], out[j])
		})
	}
	return out
}

// QueryRaw is Query with unparsed filter and sort strings.
func QueryRaw(rows []Row, search, typ, order string) []Row {
	return Query(rows, ParseOptions(search, typ, order))
}
