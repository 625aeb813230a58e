package core

import "github.com/signalsfoundry/rps-arena/model"

// beats maps each species to the one it defeats.
var beats = map[model.Species]model.Species{
	model.Rock:     model.Scissors,
	model.Scissors: model.Paper,
	model.Paper:    model.Rock,
}

// Beats returns the species that s defeats.
func Beats(s model.Species) model.Species {
	return beats[s]
}

// IsDefeatedBy reports whether x loses to y.
func IsDefeatedBy(x, y model.Species) bool {
	return Beats(y) == x
}

// Duel applies the dominance rule to two species. ok is false when they are
// the same species; otherwise exactly one of them wins.
func Duel(a, b model.Species) (winner, loser model.Species, ok bool) {
	switch {
	case a == b:
		return a, b, false
	case Beats(a) == b:
		return a, b, true
	default:
		return b, a, true
	}
}
