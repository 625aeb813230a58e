package core

import "errors"

var (
	// ErrInvalidSettings wraps every settings validation failure.
	ErrInvalidSettings = errors.New("invalid engine settings")

	// ErrAlreadyRunning is returned by Start while a round is in progress.
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrRoundEnded is returned by Start after a round ended; use Restart.
	ErrRoundEnded = errors.New("round ended; restart required")
	// ErrNotStarted is returned by Restart before the first Start.
	ErrNotStarted = errors.New("simulation not started")
	// ErrNotRunning is returned by Stop outside a running round.
	ErrNotRunning = errors.New("simulation not running")
	// ErrNotPaused is returned by Resume when ticks are not paused.
	ErrNotPaused = errors.New("simulation not paused")
)
