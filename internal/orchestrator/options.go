package orchestrator

import (
	"time"

	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/internal/state"
)

// Defaults for optional settings.
const (
	DefaultPollInterval  = 30 * time.Second
	DefaultMaxConcurrent = 1
)

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*Orchestrator)

// WithPollInterval sets the auto-mode interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxConcurrent sets how many tasks auto mode runs at once.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithChooser sets the chooser used when several agents match.
func WithChooser(c Chooser) Option {
	return func(o *Orchestrator) { o.chooser = c }
}

// WithRunStore records every sandbox run.
func WithRunStore(rs state.RunStore) Option {
	return func(o *Orchestrator) { o.runs = rs }
}

// WithLogger sets the application logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With("orchestrator") }
}

// WithEvents enables the event channel with the given buffer size.
func WithEvents(bufferSize int) Option {
	return func(o *Orchestrator) { o.eventBuffer = bufferSize }
}

// WithAutoMode sets the initial auto mode.
func WithAutoMode(on bool) Option {
	return func(o *Orchestrator) { o.autoMode.Store(on) }
}
