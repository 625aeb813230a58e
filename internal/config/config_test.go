package config

import (
	"errors"
	"flag"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/rps-arena/core"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	s, err := cfg.EngineSettings()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultSettings(), s)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RPS_ARENA_WIDTH", "300")
	t.Setenv("RPS_AGENT_COUNT", "12")
	t.Setenv("RPS_WINNING_SCORE", " 10 ")
	t.Setenv("RPS_BROAD_PHASE", "rtree")
	t.Setenv("RPS_SEED", "42")
	t.Setenv("RPS_TICK_INTERVAL", "5ms")
	t.Setenv("RPS_ACCELERATED", "false")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 300.0, cfg.ArenaWidth)
	assert.Equal(t, 12, cfg.AgentCount)
	assert.Equal(t, 10, cfg.WinningScore)
	assert.Equal(t, "rtree", cfg.BroadPhase)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 5*time.Millisecond, cfg.TickInterval)
	assert.False(t, cfg.Accelerated)
	assert.Equal(t, "json", cfg.LogFormat)

	s, err := cfg.EngineSettings()
	require.NoError(t, err)
	assert.Equal(t, core.BroadPhaseRTree, s.BroadPhase)
}

func TestFromEnvReportsEveryBadValue(t *testing.T) {
	t.Setenv("RPS_AGENT_COUNT", "many")
	t.Setenv("RPS_TICK_INTERVAL", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "RPS_AGENT_COUNT")
	assert.Contains(t, err.Error(), "RPS_TICK_INTERVAL")
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{"-agents=8", "-winning-score=6", "-rounds=3", "-broad-phase=rtree"}))
	assert.Equal(t, 8, cfg.AgentCount)
	assert.Equal(t, 6, cfg.WinningScore)
	assert.Equal(t, 3, cfg.Rounds)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"zero rounds", func(c *Config) { c.Rounds = 0 }},
		{"negative max ticks", func(c *Config) { c.MaxTicks = -1 }},
		{"unknown broad phase", func(c *Config) { c.BroadPhase = "grid" }},
		{"zero winning score", func(c *Config) { c.WinningScore = 0 }},
		{"agent wider than arena", func(c *Config) { c.AgentSize = c.ArenaWidth + 1 }},
		{"negative count", func(c *Config) { c.AgentCount = -1 }},
		{"NaN step", func(c *Config) { c.StepRange = math.NaN() }},
		{"infinite agent size", func(c *Config) { c.AgentSize = math.Inf(1) }},
		{"NaN arena height", func(c *Config) { c.ArenaHeight = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestFromEnvNaNStepFailsValidation(t *testing.T) {
	t.Setenv("RPS_STEP_RANGE", "NaN")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.True(t, math.IsNaN(cfg.StepRange))

	err = cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, core.ErrInvalidSettings)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("RPS_ROUNDS=4\nRPS_AGENT_COUNT=9\n"), 0o600))

	// Variables already present win over the file.
	t.Setenv("RPS_AGENT_COUNT", "20")
	// Registered so the value loaded from the file is cleared after the test.
	t.Setenv("RPS_ROUNDS", "")
	require.NoError(t, os.Unsetenv("RPS_ROUNDS"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Rounds)
	assert.Equal(t, 20, cfg.AgentCount)
}
