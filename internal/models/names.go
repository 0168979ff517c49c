package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds an exercise or muscle name into a comparison key:
// diacritics stripped, lower-cased, trimmed, inner whitespace collapsed.
// "Sentadilla" and " sentadílla " produce the same key.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// WithExercise keeps the records containing an exercise whose normalized
// name contains the normalized needle. An empty needle keeps everything.
func WithExercise(history []HistoryRecord, needle string) []HistoryRecord {
	needle = NormalizeName(needle)
	if needle == "" {
		return history
	}
	var out []HistoryRecord
	for _, rec := range history {
		for _, ex := range rec.Exercises {
			if strings.Contains(NormalizeName(ex.Name), needle) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
