// Package muscles allocates completed series across a fixed vocabulary of
// muscle groups.
package muscles

import (
	"strings"

	"github.com/claude/liftlog/internal/models"
)

// Canonical muscle keys.
const (
	Chest      = "pecho"
	Back       = "espalda"
	Shoulders  = "hombros"
	Biceps     = "biceps"
	Triceps    = "triceps"
	Quads      = "cuadriceps"
	Hamstrings = "isquiotibiales"
	Calves     = "gemelos"
	Glutes     = "gluteos"
	Core       = "core"
	Traps      = "trapecio"
	Forearms   = "antebrazos"
	LowerBack  = "lumbar"

	// Unassigned collects series of exercises with no primary muscle tag.
	Unassigned = "sin asignar"
)

// Keys lists the vocabulary in display order.
var Keys = []string{
	Chest, Back, LowerBack, Traps, Shoulders, Biceps, Triceps,
	Forearms, Core, Glutes, Quads, Hamstrings, Calves,
}

// rule maps normalized text to a key when any fragment is a substring or any
// word is a whole token.
type rule struct {
	key       string
	fragments []string
	words     []string
}

// rules are evaluated in order and the first match wins. More specific
// groups precede the ones whose fragments they contain.
var rules = []rule{
	{key: LowerBack, fragments: []string{"lumbar", "lower back", "espalda baja", "erector", "zona lombar", "lombar"}},
	{key: Traps, fragments: []string{"trapec", "trapez", "trapes", "traps"}},
	{key: Forearms, fragments: []string{"antebraz", "antebrac", "avantbra", "forearm"}},
	{key: Quads, fragments: []string{"cuadricep", "quadricep", "quadri"}},
	{key: Hamstrings, fragments: []string{"isquio", "femoral", "hamstring", "posterior de muslo", "posterior da coxa"}},
	{key: Triceps, fragments: []string{"tricep"}},
	{key: Biceps, fragments: []string{"bicep"}},
	{key: Quads, words: []string{"quad", "quads"}},
	{key: Calves, fragments: []string{"gemel", "pantorrill", "panturrilh", "calf", "calves", "soleo", "bessons"}},
	{key: Glutes, fragments: []string{"glut", "nalga"}},
	{key: Chest, fragments: []string{"pecho", "pectoral", "chest", "peito"}, words: []string{"pit", "pecs"}},
	{key: Shoulders, fragments: []string{"hombro", "deltoid", "shoulder", "ombro", "espatll"}, words: []string{"delts"}},
	{key: Back, fragments: []string{"espalda", "dorsal", "latissimus", "back", "costas", "esquena"}, words: []string{"lats", "lat"}},
	{key: Core, fragments: []string{"abdom", "core", "oblic", "obliq"}, words: []string{"abs"}},
	{key: Quads, fragments: []string{"pierna", "leg", "perna"}, words: []string{"cama", "cames"}},
}

func (r rule) match(text string, tokens []string) bool {
	for _, f := range r.fragments {
		if strings.Contains(text, f) {
			return true
		}
	}
	for _, w := range r.words {
		for _, t := range tokens {
			if t == w {
				return true
			}
		}
	}
	return false
}

// Canonical maps free-text muscle names to a vocabulary key. Unknown names
// return their normalized text with ok=false so no series are dropped.
func Canonical(name string) (key string, ok bool) {
	text := models.NormalizeName(name)
	if text == "" {
		return "", false
	}
	tokens := strings.Fields(text)
	for _, r := range rules {
		if r.match(text, tokens) {
			return r.key, true
		}
	}
	return text, false
}
