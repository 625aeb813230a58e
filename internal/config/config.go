package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalsfoundry/rps-arena/core"
	"github.com/signalsfoundry/rps-arena/model"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds every knob of a simulator run. Engine constants are fixed once
// the engine is built.
type Config struct {
	ArenaWidth   float64
	ArenaHeight  float64
	AgentSize    float64
	AgentCount   int
	WinningScore int
	StepRange    float64
	BroadPhase   string

	Seed         int64 // 0 picks a time-based seed
	TickInterval time.Duration
	Accelerated  bool
	Rounds       int // rounds to play before exiting
	MaxTicks     int // per-round safety cap, 0 = unlimited

	MetricsAddr string // empty disables the /metrics server
	LogLevel    string
	LogFormat   string
}

// Default returns the stock configuration.
func Default() Config {
	s := core.DefaultSettings()
	return Config{
		ArenaWidth:   s.Arena.Size.X,
		ArenaHeight:  s.Arena.Size.Y,
		AgentSize:    s.AgentSize.X,
		AgentCount:   s.AgentCount,
		WinningScore: s.WinningScore,
		StepRange:    s.StepRange,
		BroadPhase:   s.BroadPhase.String(),
		TickInterval: time.Second / 60,
		Accelerated:  true,
		Rounds:       1,
		MaxTicks:     100000,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv starts from Default and applies RPS_* and LOG_* variables.
func FromEnv() (Config, error) {
	cfg := Default()
	var errs []error

	envFloat("RPS_ARENA_WIDTH", &cfg.ArenaWidth, &errs)
	envFloat("RPS_ARENA_HEIGHT", &cfg.ArenaHeight, &errs)
	envFloat("RPS_AGENT_SIZE", &cfg.AgentSize, &errs)
	envInt("RPS_AGENT_COUNT", &cfg.AgentCount, &errs)
	envInt("RPS_WINNING_SCORE", &cfg.WinningScore, &errs)
	envFloat("RPS_STEP_RANGE", &cfg.StepRange, &errs)
	envString("RPS_BROAD_PHASE", &cfg.BroadPhase)
	envInt64("RPS_SEED", &cfg.Seed, &errs)
	envDuration("RPS_TICK_INTERVAL", &cfg.TickInterval, &errs)
	envBool("RPS_ACCELERATED", &cfg.Accelerated, &errs)
	envInt("RPS_ROUNDS", &cfg.Rounds, &errs)
	envInt("RPS_MAX_TICKS", &cfg.MaxTicks, &errs)
	envString("RPS_METRICS_ADDR", &cfg.MetricsAddr)
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("LOG_FORMAT", &cfg.LogFormat)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// RegisterFlags binds command-line flags to cfg, using its current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Float64Var(&c.ArenaWidth, "arena-width", c.ArenaWidth, "arena width in arena units")
	fs.Float64Var(&c.ArenaHeight, "arena-height", c.ArenaHeight, "arena height in arena units")
	fs.Float64Var(&c.AgentSize, "agent-size", c.AgentSize, "agent footprint edge length")
	fs.IntVar(&c.AgentCount, "agents", c.AgentCount, "number of agents per round")
	fs.IntVar(&c.WinningScore, "winning-score", c.WinningScore, "tally a species must reach to win")
	fs.Float64Var(&c.StepRange, "step", c.StepRange, "per-axis random step half-width")
	fs.StringVar(&c.BroadPhase, "broad-phase", c.BroadPhase, "collision broad phase: naive or rtree")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "random seed (0 = time-based)")
	fs.DurationVar(&c.TickInterval, "tick", c.TickInterval, "tick interval")
	fs.BoolVar(&c.Accelerated, "accelerated", c.Accelerated, "run ticks as fast as possible instead of real time")
	fs.IntVar(&c.Rounds, "rounds", c.Rounds, "rounds to play before exiting")
	fs.IntVar(&c.MaxTicks, "max-ticks", c.MaxTicks, "per-round tick cap (0 = unlimited)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text or json")
}

// Validate checks run-level fields and the derived engine settings.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %s", ErrInvalidConfig, c.TickInterval)
	}
	if c.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be positive, got %d", ErrInvalidConfig, c.Rounds)
	}
	if c.MaxTicks < 0 {
		return fmt.Errorf("%w: max ticks must not be negative, got %d", ErrInvalidConfig, c.MaxTicks)
	}
	_, err := c.EngineSettings()
	return err
}

// EngineSettings converts the config into validated engine settings.
func (c Config) EngineSettings() (core.Settings, error) {
	bp, err := core.ParseBroadPhase(c.BroadPhase)
	if err != nil {
		return core.Settings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s := core.Settings{
		Arena:        model.NewRect(0, 0, c.ArenaWidth, c.ArenaHeight),
		AgentSize:    model.Vec2{X: c.AgentSize, Y: c.AgentSize},
		AgentCount:   c.AgentCount,
		WinningScore: c.WinningScore,
		StepRange:    c.StepRange,
		BroadPhase:   bp,
	}
	if err := s.Validate(); err != nil {
		return core.Settings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s, nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(key string, dst *int, errs *[]error) {
	raw, ok := lookup(key)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func envInt64(key string, dst *int64, errs *[]error) {
	raw, ok := lookup(key)
	if !ok {
		return
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func envFloat(key string, dst *float64, errs *[]error) {
	raw, ok := lookup(key)
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func envBool(key string, dst *bool, errs *[]error) {
	raw, ok := lookup(key)
	if !ok {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func envDuration(key string, dst *time.Duration, errs *[]error) {
	raw, ok := lookup(key)
	if !ok {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
