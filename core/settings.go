package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/rps-arena/model"
)

// Settings are the engine constants fixed at construction.
type Settings struct {
	Arena        model.Rect
	AgentSize    model.Vec2
	AgentCount   int
	WinningScore int
	StepRange    float64
	BroadPhase   BroadPhase
}

// DefaultSettings mirrors the classic phone-sized board: 50 agents of 35x35,
// first species to 50 wins.
func DefaultSettings() Settings {
	return Settings{
		Arena:        model.NewRect(0, 0, 390, 560),
		AgentSize:    model.Vec2{X: 35, Y: 35},
		AgentCount:   50,
		WinningScore: 50,
		StepRange:    DefaultStepRange,
		BroadPhase:   BroadPhaseNaive,
	}
}

// Validate rejects settings that cannot produce a valid population.
func (s Settings) Validate() error {
	if s.AgentCount <= 0 {
		return fmt.Errorf("%w: agent count must be positive, got %d", ErrInvalidSettings, s.AgentCount)
	}
	if s.WinningScore <= 0 {
		return fmt.Errorf("%w: winning score must be positive, got %d", ErrInvalidSettings, s.WinningScore)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"arena origin x", s.Arena.Origin.X},
		{"arena origin y", s.Arena.Origin.Y},
		{"arena width", s.Arena.Size.X},
		{"arena height", s.Arena.Size.Y},
		{"agent width", s.AgentSize.X},
		{"agent height", s.AgentSize.Y},
		{"step range", s.StepRange},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidSettings, f.name, f.v)
		}
	}
	if s.AgentSize.X <= 0 || s.AgentSize.Y <= 0 {
		return fmt.Errorf("%w: agent size must be positive, got %vx%v", ErrInvalidSettings, s.AgentSize.X, s.AgentSize.Y)
	}
	if s.Arena.Size.X < s.AgentSize.X || s.Arena.Size.Y < s.AgentSize.Y {
		return fmt.Errorf("%w: arena %vx%v cannot hold a %vx%v agent", ErrInvalidSettings,
			s.Arena.Size.X, s.Arena.Size.Y, s.AgentSize.X, s.AgentSize.Y)
	}
	if s.StepRange < 0 {
		return fmt.Errorf("%w: step range must not be negative, got %v", ErrInvalidSettings, s.StepRange)
	}
	if s.BroadPhase != BroadPhaseNaive && s.BroadPhase != BroadPhaseRTree {
		return fmt.Errorf("%w: unknown broad phase %v", ErrInvalidSettings, s.BroadPhase)
	}
	return nil
}
