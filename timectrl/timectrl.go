package timectrl

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time, one Tick per interval.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController is the periodic driver for the simulation. It advances
// simulation time and invokes listeners once per tick. While paused the loop
// keeps running but neither time nor listeners advance.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       int

	paused atomic.Bool
	quit   chan struct{}
	once   sync.Once

	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
		quit:        make(chan struct{}),
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns how many ticks have been delivered to listeners.
func (tc *TimeController) Ticks() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// AddListener registers a callback invoked on every tick. Listeners must be
// added before Start.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Pause stops delivering ticks until Resume. It is safe to call from a
// listener.
func (tc *TimeController) Pause() { tc.paused.Store(true) }

// Resume restarts tick delivery.
func (tc *TimeController) Resume() { tc.paused.Store(false) }

// Paused reports whether tick delivery is suspended.
func (tc *TimeController) Paused() bool { return tc.paused.Load() }

// Stop terminates a running loop. It is idempotent.
func (tc *TimeController) Stop() {
	tc.once.Do(func() { close(tc.quit) })
}

// Start runs the controller for the specified amount of simulation time in a
// separate goroutine; duration <= 0 runs until Stop. It returns a channel that
// is closed when the controller finishes. Accelerated mode does not wait for
// the wall clock between ticks.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		listeners := append([]func(time.Time){}, tc.listeners...)
		tc.mu.Unlock()

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				select {
				case <-tc.quit:
					return
				case <-ticker.C:
				}
			} else {
				select {
				case <-tc.quit:
					return
				default:
				}
			}

			if tc.paused.Load() {
				if ticker == nil {
					// Avoid spinning while paused in accelerated mode.
					time.Sleep(time.Millisecond)
				}
				continue
			}

			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.ticks++
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}
