package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/rps-arena/internal/logging"
	"github.com/signalsfoundry/rps-arena/model"
	"github.com/signalsfoundry/rps-arena/registry"
)

const tracerName = "github.com/signalsfoundry/rps-arena/core"

// State is the engine's logical lifecycle state.
type State int

const (
	NotStarted State = iota
	Running
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EndReason explains why a round ended.
type EndReason string

const (
	ReasonThreshold   EndReason = "threshold"
	ReasonConvergence EndReason = "convergence"
)

// Outcome describes a finished round.
type Outcome struct {
	Round   int
	RoundID string
	Tick    int
	Winner  model.Species
	Reason  EndReason
	Tally   registry.Tally
}

// Snapshot is a read-only copy of the engine state taken between ticks.
type Snapshot struct {
	Round  int
	Tick   int
	State  State
	Paused bool
	Agents []model.Agent
	Tally  registry.Tally
}

// TickDriver is the external clock that calls Tick. The engine pauses it when
// a round ends or Stop is called and resumes it on Start, Restart and Resume.
type TickDriver interface {
	Pause()
	Resume()
}

// MetricsRecorder receives per-tick and per-round measurements.
type MetricsRecorder interface {
	ObserveTick(d time.Duration)
	RecordConversion(winner, loser model.Species)
	SetPopulation(counts map[model.Species]int)
	RecordRoundEnd(winner model.Species, reason string)
}

// Populator fills the registry at the start of every round.
type Populator func(reg *registry.Registry, rng *rand.Rand, s Settings) error

// RandomPopulator places AgentCount agents uniformly at random.
func RandomPopulator(reg *registry.Registry, rng *rand.Rand, s Settings) error {
	return reg.Populate(rng, s.AgentCount, s.Arena, s.AgentSize)
}

// EngineOption customises a SimulationEngine.
type EngineOption func(*SimulationEngine)

// WithDriver attaches the clock that drives Tick.
func WithDriver(d TickDriver) EngineOption {
	return func(se *SimulationEngine) {
		se.driver = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if l != nil {
			se.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) EngineOption {
	return func(se *SimulationEngine) {
		se.metrics = m
	}
}

// WithMotionModel replaces the default random walk.
func WithMotionModel(m MotionModel) EngineOption {
	return func(se *SimulationEngine) {
		if m != nil {
			se.motion = m
		}
	}
}

// WithPopulator replaces the default random population step.
func WithPopulator(p Populator) EngineOption {
	return func(se *SimulationEngine) {
		if p != nil {
			se.populate = p
		}
	}
}


// SimulationEngine orchestrates rounds: populate, tick until a species wins,
// restart. All mutation happens inside Tick, Start, Restart and Reset, which
// are serialized.
type SimulationEngine struct {
	mu sync.Mutex

	settings  Settings
	rng       *rand.Rand
	registry  *registry.Registry
	resolver  *CollisionResolver
	motion    MotionModel
	populate  Populator
	driver    TickDriver
	metrics   MetricsRecorder
	log       logging.Logger
	roundLog  logging.Logger
	roundCtx  context.Context
	roundSpan trace.Span
	tracer    trace.Tracer

	state   State
	paused  bool
	tick    int
	round   int
	roundID string
	outcome *Outcome

	tickListeners []func(Snapshot)
	endListeners  []func(Outcome)
}

// NewSimulationEngine validates settings and builds an engine in NotStarted.
// All randomness is drawn from rng.
func NewSimulationEngine(s Settings, rng *rand.Rand, opts ...EngineOption) (*SimulationEngine, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidSettings)
	}

	se := &SimulationEngine{
		settings: s,
		rng:      rng,
		registry: registry.NewRegistry(),
		resolver: NewCollisionResolver(s.BroadPhase),
		motion:   NewRandomWalk(rng, s.StepRange),
		populate: RandomPopulator,
		log:      logging.Noop(),
		tracer:   otel.Tracer(tracerName),
		state:    NotStarted,
	}
	for _, opt := range opts {
		opt(se)
	}
	se.roundLog = se.log
	se.roundCtx = context.Background()
	se.registry.Subscribe(se.recordRegistryEvent)
	return se, nil
}

// recordRegistryEvent forwards population changes to the metrics recorder.
// It runs outside the registry lock but may run under the engine lock, so it
// must not call back into the engine.
func (se *SimulationEngine) recordRegistryEvent(e registry.Event) {
	if se.metrics == nil {
		return
	}
	switch e.Type {
	case registry.EventConverted:
		se.metrics.RecordConversion(e.Agent.Species, e.From)
	case registry.EventCleared:
		se.metrics.SetPopulation(registry.NewTally())
	}
}

// OnTick registers a callback receiving a snapshot after every executed tick.
func (se *SimulationEngine) OnTick(fn func(Snapshot)) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.tickListeners = append(se.tickListeners, fn)
}

// OnEnded registers a callback invoked exactly once per finished round.
func (se *SimulationEngine) OnEnded(fn func(Outcome)) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.endListeners = append(se.endListeners, fn)
}

// Settings returns the construction-time settings.
func (se *SimulationEngine) Settings() Settings { return se.settings }

// Registry exposes the agent registry for read access.
func (se *SimulationEngine) Registry() *registry.Registry { return se.registry }

// Start populates the arena and begins the first round. It is valid only from
// NotStarted; a running engine returns ErrAlreadyRunning and an ended one
// returns ErrRoundEnded.
func (se *SimulationEngine) Start(ctx context.Context) error {
	se.mu.Lock()
	switch se.state {
	case Running:
		se.mu.Unlock()
		return ErrAlreadyRunning
	case Ended:
		se.mu.Unlock()
		return ErrRoundEnded
	}
	err := se.beginRoundLocked(ctx, "round started")
	se.mu.Unlock()
	if err != nil {
		return err
	}
	se.resumeDriver()
	return nil
}

// Restart discards the population and begins a fresh round. It is valid after
// a round ended and as a manual override while running.
func (se *SimulationEngine) Restart(ctx context.Context) error {
	se.mu.Lock()
	if se.state == NotStarted {
		se.mu.Unlock()
		return ErrNotStarted
	}
	err := se.beginRoundLocked(ctx, "round restarted")
	se.mu.Unlock()
	if err != nil {
		return err
	}
	se.resumeDriver()
	return nil
}

// Reset discards the population and returns the engine to NotStarted.
func (se *SimulationEngine) Reset() {
	se.mu.Lock()
	se.endRoundSpanLocked(attribute.Bool("sim.reset", true))
	se.registry.Clear()
	se.state = NotStarted
	se.paused = false
	se.tick = 0
	se.outcome = nil
	log, ctx := se.roundLog, se.roundCtx
	se.mu.Unlock()

	se.pauseDriver()
	log.Info(ctx, "engine reset")
}

// Stop pauses tick driving without touching agents or the tally.
func (se *SimulationEngine) Stop() error {
	se.mu.Lock()
	if se.state != Running {
		se.mu.Unlock()
		return ErrNotRunning
	}
	if se.paused {
		se.mu.Unlock()
		return nil
	}
	se.paused = true
	log, ctx := se.roundLog, se.roundCtx
	se.mu.Unlock()

	se.pauseDriver()
	log.Info(ctx, "ticks paused")
	return nil
}

// Resume restarts tick driving after Stop.
func (se *SimulationEngine) Resume() error {
	se.mu.Lock()
	if se.state != Running || !se.paused {
		se.mu.Unlock()
		return ErrNotPaused
	}
	se.paused = false
	log, ctx := se.roundLog, se.roundCtx
	se.mu.Unlock()

	se.resumeDriver()
	log.Info(ctx, "ticks resumed")
	return nil
}

// Tick advances the running round by one step: move every agent, resolve
// collisions, then evaluate the end condition. Outside a running, unpaused
// round it does nothing, which tolerates a driver racing with Stop.
func (se *SimulationEngine) Tick(ctx context.Context) {
	se.mu.Lock()
	if se.state != Running || se.paused {
		se.mu.Unlock()
		return
	}

	snap, outcome := se.advanceLocked(ctx)
	tickListeners := append([]func(Snapshot){}, se.tickListeners...)
	var endListeners []func(Outcome)
	if outcome != nil {
		endListeners = append(endListeners, se.endListeners...)
	}
	se.mu.Unlock()

	if outcome != nil {
		se.pauseDriver()
	}
	for _, fn := range tickListeners {
		fn(snap)
	}
	for _, fn := range endListeners {
		fn(*outcome)
	}
}

func (se *SimulationEngine) advanceLocked(ctx context.Context) (Snapshot, *Outcome) {
	if ctx == nil {
		ctx = se.roundCtx
	}
	if se.roundSpan != nil {
		ctx = trace.ContextWithSpan(ctx, se.roundSpan)
	}
	se.tick++
	ctx, span := se.tracer.Start(ctx, "engine.Tick", trace.WithAttributes(
		attribute.Int("sim.round", se.round),
		attribute.Int("sim.tick", se.tick),
	))
	defer span.End()
	started := time.Now()

	agents := se.registry.Agents()
	for _, a := range agents {
		next := se.motion.Step(a.Position, se.settings.Arena, a.Size)
		if err := se.registry.UpdatePosition(a.ID, next); err != nil {
			se.roundLog.Error(ctx, "failed to move agent", logging.String("agent_id", a.ID), logging.Err(err))
		}
	}

	conversions, err := se.resolver.Resolve(se.tick, agents, se.registry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		se.roundLog.Error(ctx, "collision resolution failed", logging.Int("tick", se.tick), logging.Err(err))
	}
	for _, c := range conversions {
		se.roundLog.Debug(ctx, "agent converted",
			logging.Int("tick", c.Tick),
			logging.String("agent_id", c.LoserID),
			logging.String("by", c.WinnerID),
			logging.String("from", c.From.String()),
			logging.String("to", c.To.String()),
		)
	}
	if err := se.registry.Verify(); err != nil {
		se.roundLog.Error(ctx, "tally invariant violated", logging.Int("tick", se.tick), logging.Err(err))
	}

	tally := se.registry.Tally()
	span.SetAttributes(attribute.Int("sim.conversions", len(conversions)))

	var outcome *Outcome
	if winner, reason, ok := se.endCondition(tally); ok {
		se.state = Ended
		outcome = &Outcome{
			Round:   se.round,
			RoundID: se.roundID,
			Tick:    se.tick,
			Winner:  winner,
			Reason:  reason,
			Tally:   tally.Clone(),
		}
		se.outcome = outcome
		span.SetAttributes(
			attribute.String("sim.winner", winner.String()),
			attribute.String("sim.end_reason", string(reason)),
		)
		se.endRoundSpanLocked(
			attribute.String("sim.winner", winner.String()),
			attribute.String("sim.end_reason", string(reason)),
			attribute.Int("sim.ticks", se.tick),
		)
		se.roundLog.Info(ctx, "round ended",
			logging.Int("tick", se.tick),
			logging.String("winner", winner.String()),
			logging.String("reason", string(reason)),
			logging.String("tally", tally.String()),
		)
	}

	if se.metrics != nil {
		se.metrics.SetPopulation(tally)
		se.metrics.ObserveTick(time.Since(started))
		if outcome != nil {
			se.metrics.RecordRoundEnd(outcome.Winner, string(outcome.Reason))
		}
	}
	return se.snapshotLocked(), outcome
}

// endCondition checks the threshold and convergence rules independently.
// When several species reach the threshold together the largest wins, ties
// going to the earlier species in the cycle.
func (se *SimulationEngine) endCondition(tally registry.Tally) (model.Species, EndReason, bool) {
	best, found := model.Species(0), false
	for _, s := range model.AllSpecies {
		if tally[s] >= se.settings.WinningScore && (!found || tally[s] > tally[best]) {
			best, found = s, true
		}
	}
	if found {
		return best, ReasonThreshold, true
	}
	if s, ok := tally.Converged(); ok && tally[s] == se.registry.Len() {
		return s, ReasonConvergence, true
	}
	return 0, "", false
}

func (se *SimulationEngine) beginRoundLocked(ctx context.Context, msg string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := se.populate(se.registry, se.rng, se.settings); err != nil {
		return fmt.Errorf("populate round: %w", err)
	}

	se.endRoundSpanLocked(attribute.Bool("sim.restarted", true))
	se.round++
	ctx, se.roundLog, se.roundID = logging.WithRound(ctx, se.log)
	// Ticks are children of the round span, so a parent-based sampler keeps
	// or drops whole rounds.
	se.roundCtx, se.roundSpan = se.tracer.Start(ctx, "engine.Round", trace.WithAttributes(
		attribute.Int("sim.round", se.round),
		attribute.String("sim.round_id", se.roundID),
		attribute.Int("sim.agents", se.registry.Len()),
	))
	se.state = Running
	se.paused = false
	se.tick = 0
	se.outcome = nil

	tally := se.registry.Tally()
	if se.metrics != nil {
		se.metrics.SetPopulation(tally)
	}
	se.roundLog.Info(se.roundCtx, msg,
		logging.Int("round", se.round),
		logging.Int("agents", se.registry.Len()),
		logging.String("tally", tally.String()),
	)
	return nil
}

// State returns the current lifecycle state.
func (se *SimulationEngine) State() State {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.state
}

// Paused reports whether Stop suspended tick driving.
func (se *SimulationEngine) Paused() bool {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.paused
}

// TickCount returns the number of ticks executed in the current round.
func (se *SimulationEngine) TickCount() int {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.tick
}

// Round returns the 1-based index of the current round, or 0 before Start.
func (se *SimulationEngine) Round() int {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.round
}

// Winner returns the outcome of the current round once it has ended.
func (se *SimulationEngine) Winner() (Outcome, bool) {
	se.mu.Lock()
	defer se.mu.Unlock()
	if se.outcome == nil {
		return Outcome{}, false
	}
	return *se.outcome, true
}

// Snapshot returns a copy of the current agents and tally.
func (se *SimulationEngine) Snapshot() Snapshot {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.snapshotLocked()
}

func (se *SimulationEngine) snapshotLocked() Snapshot {
	return Snapshot{
		Round:  se.round,
		Tick:   se.tick,
		State:  se.state,
		Paused: se.paused,
		Agents: se.registry.List(),
		Tally:  se.registry.Tally(),
	}
}

func (se *SimulationEngine) endRoundSpanLocked(attrs ...attribute.KeyValue) {
	if se.roundSpan == nil {
		return
	}
	se.roundSpan.SetAttributes(attrs...)
	se.roundSpan.End()
	se.roundSpan = nil
}

func (se *SimulationEngine) pauseDriver() {
	if se.driver != nil {
		se.driver.Pause()
	}
}

func (se *SimulationEngine) resumeDriver() {
	if se.driver != nil {
		se.driver.Resume()
	}
}
