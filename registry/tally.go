package registry

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/rps-arena/model"
)

// Tally is the live per-species agent count.
type Tally map[model.Species]int

// NewTally returns a tally with an explicit zero entry for every species.
func NewTally() Tally {
	t := make(Tally, len(model.AllSpecies))
	for _, s := range model.AllSpecies {
		t[s] = 0
	}
	return t
}

// Total returns the sum of all counts.
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Clone returns an independent copy.
func (t Tally) Clone() Tally {
	out := make(Tally, len(t))
	for s, n := range t {
		out[s] = n
	}
	return out
}

// Equal reports whether both tallies hold the same count for every species.
func (t Tally) Equal(other Tally) bool {
	for _, s := range model.AllSpecies {
		if t[s] != other[s] {
			return false
		}
	}
	return true
}

// Converged returns the single species holding the whole population, if any.
func (t Tally) Converged() (model.Species, bool) {
	present := nonZero(t)
	if len(present) != 1 {
		return 0, false
	}
	return present[0], true
}

// Progress renders one scoreboard line per species, e.g. "rock: 12/50".
func (t Tally) Progress(threshold int) []string {
	lines := make([]string, 0, len(model.AllSpecies))
	for _, s := range model.AllSpecies {
		lines = append(lines, fmt.Sprintf("%s: %d/%d", s, t[s], threshold))
	}
	return lines
}

func (t Tally) String() string {
	parts := make([]string, 0, len(model.AllSpecies))
	for _, s := range model.AllSpecies {
		parts = append(parts, fmt.Sprintf("%s=%d", s, t[s]))
	}
	return strings.Join(parts, " ")
}

func nonZero(t Tally) []model.Species {
	var out []model.Species
	for _, s := range model.AllSpecies {
		if t[s] != 0 {
			out = append(out, s)
		}
	}
	return out
}
