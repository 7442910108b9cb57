package worker

import (
	"time"

	"github.com/okian/civicflow/internal/adapters/mq/queue"
	"github.com/okian/civicflow/internal/domain/dedupe"
	"github.com/okian/civicflow/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTaskTimeout bounds each task run.
func WithTaskTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.taskTimeout = d
		}
	}
}

func withOnDone(fn func(queue.Task, error)) Option {
	return func(w *InMemoryWorker) { w.onDone = fn }
}

type poolConfig struct {
	taskTimeout time.Duration
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool, *poolConfig)

// WithPoolLogger sets the logger shared by the pool and its workers.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool, _ *poolConfig) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDeduper enables replay suppression by task key.
func WithDeduper(d dedupe.Deduper) PoolOption {
	return func(p *Pool, _ *poolConfig) { p.deduper = d }
}

// WithPoolTaskTimeout bounds each task run across all workers.
func WithPoolTaskTimeout(d time.Duration) PoolOption {
	return func(_ *Pool, c *poolConfig) {
		if d > 0 {
			c.taskTimeout = d
		}
	}
}
