package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signalsfoundry/rps-arena/model"
)

func TestBeatsCycle(t *testing.T) {
	assert.Equal(t, model.Scissors, Beats(model.Rock))
	assert.Equal(t, model.Paper, Beats(model.Scissors))
	assert.Equal(t, model.Rock, Beats(model.Paper))
}

func TestEveryPairHasOneWinner(t *testing.T) {
	for _, a := range model.AllSpecies {
		assert.False(t, IsDefeatedBy(a, a), "%s should not defeat itself", a)
		for _, b := range model.AllSpecies {
			if a == b {
				continue
			}
			assert.NotEqual(t, IsDefeatedBy(a, b), IsDefeatedBy(b, a), "%s vs %s must be asymmetric", a, b)
		}
	}
}

func TestDuel(t *testing.T) {
	w, l, ok := Duel(model.Rock, model.Scissors)
	assert.True(t, ok)
	assert.Equal(t, model.Rock, w)
	assert.Equal(t, model.Scissors, l)

	w, l, ok = Duel(model.Rock, model.Paper)
	assert.True(t, ok)
	assert.Equal(t, model.Paper, w)
	assert.Equal(t, model.Rock, l)

	_, _, ok = Duel(model.Paper, model.Paper)
	assert.False(t, ok)
}
