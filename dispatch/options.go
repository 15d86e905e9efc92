package dispatch

import (
	"log/slog"
	"time"

	"github.com/meigma/pak/core/cache"
	"github.com/meigma/pak/metrics"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds how long Load waits for the worker before falling
// back. Zero (the default) waits until the worker replies.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.timeout = d
	}
}

// WithLogger sets the logger for worker failures and cache activity.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(disp *Dispatcher) {
		disp.logger = logger
	}
}

// WithCache enables the directory cache. Loads of previously seen buffers
// bind the cached directory instead of parsing.
func WithCache(c cache.Cache) Option {
	return func(disp *Dispatcher) {
		disp.cache = c
	}
}

// WithMetrics records load paths, durations and worker failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(disp *Dispatcher) {
		disp.metrics = m
	}
}

// WithWorkerDisabled makes every load take the synchronous path.
func WithWorkerDisabled() Option {
	return func(disp *Dispatcher) {
		disp.disabled = true
	}
}

// WithWorkerFunc replaces the function the worker runs. It defaults to
// pak.ParseEntries.
func WithWorkerFunc(fn WorkerFunc) Option {
	return func(disp *Dispatcher) {
		if fn != nil {
			disp.work = fn
		}
	}
}
