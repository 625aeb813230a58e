package registry

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/rps-arena/model"
)

// ErrTallyDrift is returned by Verify when the incremental tally no longer
// matches a direct recount of agent species.
var ErrTallyDrift = errors.New("tally does not match agent species")

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventPopulated EventType = iota
	EventConverted
	EventCleared
)

// Event is emitted to subscribers when the population changes.
type Event struct {
	Type  EventType
	Agent model.Agent   // set for EventConverted
	From  model.Species // previous species for EventConverted
	Count int           // population size after the change
}

// Registry owns the agent population and its tally. Agents are kept in
// insertion order; that order defines collision pair ordering.
type Registry struct {
	mu sync.RWMutex

	agents []*model.Agent
	index  map[string]int
	tally  Tally

	subs    []subscriber
	nextSub uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
		tally: NewTally(),
	}
}

// Populate discards the current population and creates n agents, each with
// a uniformly random species and a random position whose full footprint lies
// inside bounds. IDs are drawn from rng so a seeded source reproduces them.
func (r *Registry) Populate(rng *rand.Rand, n int, bounds model.Rect, size model.Vec2) error {
	if rng == nil {
		return errors.New("populate: nil random source")
	}
	if n <= 0 {
		return fmt.Errorf("populate: agent count must be positive, got %d", n)
	}
	if size.X <= 0 || size.Y <= 0 {
		return fmt.Errorf("populate: agent size must be positive, got %vx%v", size.X, size.Y)
	}
	spanX := bounds.Size.X - size.X
	spanY := bounds.Size.Y - size.Y
	if spanX < 0 || spanY < 0 {
		return fmt.Errorf("populate: arena %vx%v smaller than agent footprint %vx%v",
			bounds.Size.X, bounds.Size.Y, size.X, size.Y)
	}

	agents := make([]*model.Agent, 0, n)
	index := make(map[string]int, n)
	tally := NewTally()
	for i := 0; i < n; i++ {
		species := model.AllSpecies[rng.Intn(len(model.AllSpecies))]
		pos := model.Vec2{
			X: bounds.MinX() + rng.Float64()*spanX,
			Y: bounds.MinY() + rng.Float64()*spanY,
		}
		id, err := uuid.NewRandomFromReader(rng)
		if err != nil {
			return fmt.Errorf("populate: agent id: %w", err)
		}
		a := &model.Agent{
			ID:       id.String(),
			Species:  species,
			Position: pos,
			Size:     size,
		}
		index[a.ID] = len(agents)
		agents = append(agents, a)
		tally[species]++
	}

	r.mu.Lock()
	r.agents = agents
	r.index = index
	r.tally = tally
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventPopulated, Count: n})
	return nil
}

// Add appends a single agent. It returns an error if the ID already exists or
// the species is not part of the cycle.
func (r *Registry) Add(a *model.Agent) error {
	if a == nil {
		return errors.New("add: nil agent")
	}
	if !a.Species.Valid() {
		return fmt.Errorf("add: agent %q has invalid species %d", a.ID, int(a.Species))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[a.ID]; exists {
		return fmt.Errorf("agent with ID %q already exists", a.ID)
	}
	r.index[a.ID] = len(r.agents)
	r.agents = append(r.agents, a)
	r.tally[a.Species]++
	return nil
}

// Clear discards every agent and zeroes the tally.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.agents = nil
	r.index = make(map[string]int)
	r.tally = NewTally()
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, Event{Type: EventCleared})
}

// Len returns the population size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Agents returns the live agent pointers in registry order. Callers must not
// retain them across a Populate or Clear.
func (r *Registry) Agents() []*model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*model.Agent(nil), r.agents...)
}

// List returns copies of every agent in registry order.
func (r *Registry) List() []model.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]model.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		res = append(res, *a)
	}
	return res
}

// Get returns a copy of the agent with the given ID.
func (r *Registry) Get(id string) (model.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[id]
	if !ok {
		return model.Agent{}, false
	}
	return *r.agents[i], true
}

// UpdatePosition moves an agent.
func (r *Registry) UpdatePosition(id string, pos model.Vec2) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[id]
	if !ok {
		return fmt.Errorf("agent with ID %q not found", id)
	}
	r.agents[i].Position = pos
	return nil
}

// Convert overwrites an agent's species and adjusts the tally incrementally.
// It returns the previous species. Converting to the current species is a
// no-op.
func (r *Registry) Convert(id string, to model.Species) (model.Species, error) {
	if !to.Valid() {
		return 0, fmt.Errorf("convert: invalid species %d", int(to))
	}

	r.mu.Lock()
	i, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return 0, fmt.Errorf("agent with ID %q not found", id)
	}
	a := r.agents[i]
	from := a.Species
	if from == to {
		r.mu.Unlock()
		return from, nil
	}
	a.Species = to
	r.tally[from]--
	r.tally[to]++
	event := Event{
		Type:  EventConverted,
		Agent: *a,
		From:  from,
		Count: len(r.agents),
	}
	subs := r.subscribersLocked()
	r.mu.Unlock()

	notify(subs, event)
	return from, nil
}

// Tally returns a copy of the current tally.
func (r *Registry) Tally() Tally {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tally.Clone()
}

// Recount computes the tally directly from agent species.
func (r *Registry) Recount() Tally {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := NewTally()
	for _, a := range r.agents {
		t[a.Species]++
	}
	return t
}

// Verify checks the tally against a recount and the population size.
func (r *Registry) Verify() error {
	recount := r.Recount()

	r.mu.RLock()
	tally := r.tally.Clone()
	n := len(r.agents)
	r.mu.RUnlock()

	if tally.Total() != n {
		return fmt.Errorf("%w: tally sums to %d for %d agents", ErrTallyDrift, tally.Total(), n)
	}
	if !tally.Equal(recount) {
		return fmt.Errorf("%w: tally %s, recount %s", ErrTallyDrift, tally, recount)
	}
	return nil
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function that is safe to call more than once.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSub++
	id := r.nextSub
	r.subs = append(r.subs, subscriber{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.subs {
			if sub.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) subscribersLocked() []func(Event) {
	if len(r.subs) == 0 {
		return nil
	}
	fns := make([]func(Event), len(r.subs))
	for i, sub := range r.subs {
		fns[i] = sub.fn
	}
	return fns
}

// Subscribers run outside the lock so they may call back into the registry.
func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
