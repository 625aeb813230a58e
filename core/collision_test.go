package core

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/rps-arena/model"
	"github.com/signalsfoundry/rps-arena/registry"
)

type placement struct {
	id      string
	species model.Species
	x, y    float64
}

func buildRegistry(t *testing.T, ps ...placement) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	for _, p := range ps {
		require.NoError(t, reg.Add(&model.Agent{
			ID:       p.id,
			Species:  p.species,
			Position: model.Vec2{X: p.x, Y: p.y},
			Size:     agentSize,
		}))
	}
	return reg
}

func speciesOf(t *testing.T, reg *registry.Registry, id string) model.Species {
	t.Helper()
	a, ok := reg.Get(id)
	require.True(t, ok, "agent %s missing", id)
	return a.Species
}

func TestResolveWinnerConvertsLoser(t *testing.T) {
	for _, bp := range []BroadPhase{BroadPhaseNaive, BroadPhaseRTree} {
		t.Run(bp.String(), func(t *testing.T) {
			reg := buildRegistry(t,
				placement{"paper", model.Paper, 0, 0},
				placement{"rock", model.Rock, 5, 5},
			)
			convs, err := NewCollisionResolver(bp).Resolve(1, reg.Agents(), reg)
			require.NoError(t, err)

			assert.Equal(t, model.Paper, speciesOf(t, reg, "paper"))
			assert.Equal(t, model.Paper, speciesOf(t, reg, "rock"))
			require.Len(t, convs, 1)
			assert.Equal(t, Conversion{Tick: 1, WinnerID: "paper", LoserID: "rock", From: model.Rock, To: model.Paper}, convs[0])
			assert.Equal(t, 2, reg.Tally()[model.Paper])
			assert.NoError(t, reg.Verify())
		})
	}
}

func TestResolveSameSpeciesUnchanged(t *testing.T) {
	reg := buildRegistry(t,
		placement{"a", model.Scissors, 0, 0},
		placement{"b", model.Scissors, 2, 2},
	)
	convs, err := NewCollisionResolver(BroadPhaseNaive).Resolve(1, reg.Agents(), reg)
	require.NoError(t, err)
	assert.Empty(t, convs)
	assert.Equal(t, 2, reg.Tally()[model.Scissors])
}

func TestResolveTouchingEdgesCollide(t *testing.T) {
	for _, bp := range []BroadPhase{BroadPhaseNaive, BroadPhaseRTree} {
		t.Run(bp.String(), func(t *testing.T) {
			reg := buildRegistry(t,
				placement{"rock", model.Rock, 0, 0},
				placement{"scissors", model.Scissors, 10, 0},
				placement{"far", model.Paper, 60, 60},
			)
			_, err := NewCollisionResolver(bp).Resolve(1, reg.Agents(), reg)
			require.NoError(t, err)
			assert.Equal(t, model.Rock, speciesOf(t, reg, "scissors"))
			assert.Equal(t, model.Paper, speciesOf(t, reg, "far"))
		})
	}
}

// A(rock) overlaps B(scissors), B overlaps C(paper), A and C are apart.
// Pair (A,B) runs first and turns B into rock, so (B,C) is rock against
// paper and B converts again. A snapshot-based pass would instead have
// turned C into scissors.
func TestResolveChainedConversionInIndexOrder(t *testing.T) {
	for _, bp := range []BroadPhase{BroadPhaseNaive, BroadPhaseRTree} {
		t.Run(bp.String(), func(t *testing.T) {
			reg := buildRegistry(t,
				placement{"A", model.Rock, 0, 0},
				placement{"B", model.Scissors, 8, 0},
				placement{"C", model.Paper, 16, 0},
			)
			convs, err := NewCollisionResolver(bp).Resolve(1, reg.Agents(), reg)
			require.NoError(t, err)

			assert.Equal(t, model.Rock, speciesOf(t, reg, "A"))
			assert.Equal(t, model.Paper, speciesOf(t, reg, "B"))
			assert.Equal(t, model.Paper, speciesOf(t, reg, "C"))
			require.Len(t, convs, 2)
			assert.Equal(t, Conversion{Tick: 1, WinnerID: "A", LoserID: "B", From: model.Scissors, To: model.Rock}, convs[0])
			assert.Equal(t, Conversion{Tick: 1, WinnerID: "C", LoserID: "B", From: model.Rock, To: model.Paper}, convs[1])
			assert.NoError(t, reg.Verify())
		})
	}
}

// With all three overlapping the order is (A,B), (A,C), (B,C).
func TestResolveChainedConversionFullOverlap(t *testing.T) {
	reg := buildRegistry(t,
		placement{"A", model.Rock, 0, 0},
		placement{"B", model.Scissors, 3, 0},
		placement{"C", model.Paper, 6, 0},
	)
	convs, err := NewCollisionResolver(BroadPhaseNaive).Resolve(1, reg.Agents(), reg)
	require.NoError(t, err)

	// B -> rock, then A (rock) -> paper, then B (rock) -> paper.
	require.Len(t, convs, 3)
	assert.Equal(t, "B", convs[0].LoserID)
	assert.Equal(t, "A", convs[1].LoserID)
	assert.Equal(t, "B", convs[2].LoserID)
	tally := reg.Tally()
	assert.Equal(t, 3, tally[model.Paper])
	assert.Equal(t, 3, tally.Total())
}

func TestBroadPhasesFindSamePairs(t *testing.T) {
	bounds := model.NewRect(0, 0, 200, 200)
	for seed := int64(1); seed <= 20; seed++ {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Populate(rand.New(rand.NewSource(seed)), 60, bounds, model.Vec2{X: 20, Y: 20}))
		agents := reg.Agents()

		naive := NewCollisionResolver(BroadPhaseNaive).Pairs(agents)
		tree := NewCollisionResolver(BroadPhaseRTree).Pairs(agents)
		assert.Equal(t, naive, tree, "seed %d", seed)
	}
}

func TestResolveReportsConverterErrors(t *testing.T) {
	reg := buildRegistry(t,
		placement{"rock", model.Rock, 0, 0},
		placement{"scissors", model.Scissors, 1, 1},
	)
	_, err := NewCollisionResolver(BroadPhaseNaive).Resolve(1, reg.Agents(), failingConverter{})
	assert.Error(t, err)
}

type failingConverter struct{}

func (failingConverter) Convert(id string, _ model.Species) (model.Species, error) {
	return 0, fmt.Errorf("agent %s locked", id)
}

func TestParseBroadPhase(t *testing.T) {
	bp, err := ParseBroadPhase("RTree")
	require.NoError(t, err)
	assert.Equal(t, BroadPhaseRTree, bp)

	bp, err = ParseBroadPhase("")
	require.NoError(t, err)
	assert.Equal(t, BroadPhaseNaive, bp)

	_, err = ParseBroadPhase("quadtree")
	assert.Error(t, err)
}
