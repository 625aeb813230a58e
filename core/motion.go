package core

import (
	"math"
	"math/rand"

	"github.com/signalsfoundry/rps-arena/model"
)

// DefaultStepRange is the half-width of the per-axis random displacement.
const DefaultStepRange = 5.0

// MotionModel proposes an agent's next position for one tick. Implementations
// must return a position whose footprint lies inside bounds.
type MotionModel interface {
	Step(pos model.Vec2, bounds model.Rect, size model.Vec2) model.Vec2
}

// StaticMotionModel leaves agents where they are, clamped into bounds.
type StaticMotionModel struct{}

// Step for static motion only clamps.
func (m StaticMotionModel) Step(pos model.Vec2, bounds model.Rect, size model.Vec2) model.Vec2 {
	return ClampToBounds(pos, bounds, size)
}

// RandomWalkMotionModel displaces each axis by a uniform draw from
// [-StepRange, StepRange) and clamps the result.
type RandomWalkMotionModel struct {
	StepRange float64
	rng       *rand.Rand
}

// NewRandomWalk constructs a random walk drawing from rng.
func NewRandomWalk(rng *rand.Rand, stepRange float64) *RandomWalkMotionModel {
	return &RandomWalkMotionModel{StepRange: stepRange, rng: rng}
}

// Step draws the x delta first, then y.
func (m *RandomWalkMotionModel) Step(pos model.Vec2, bounds model.Rect, size model.Vec2) model.Vec2 {
	delta := model.Vec2{
		X: m.draw(),
		Y: m.draw(),
	}
	return ClampToBounds(pos.Add(delta), bounds, size)
}

func (m *RandomWalkMotionModel) draw() float64 {
	return (m.rng.Float64()*2 - 1) * m.StepRange
}

// ClampToBounds moves a footprint at pos back inside bounds. Each axis is
// clamped independently, so a corner hit clamps both.
func ClampToBounds(pos model.Vec2, bounds model.Rect, size model.Vec2) model.Vec2 {
	return model.Vec2{
		X: clampAxis(pos.X, bounds.MinX(), bounds.MaxX()-size.X),
		Y: clampAxis(pos.Y, bounds.MinY(), bounds.MaxY()-size.Y),
	}
}

func clampAxis(v, lo, hi float64) float64 {
	// A footprint wider than the arena pins to the minimum edge.
	if hi < lo {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
