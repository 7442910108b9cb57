// Package worker runs detached side-effect tasks off the task queue. Task
// failures are logged and counted here and never reach the caller that
// scheduled them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/civicflow/internal/adapters/mq/queue"
	"github.com/okian/civicflow/internal/domain/dedupe"
	"github.com/okian/civicflow/pkg/logger"
	"github.com/okian/civicflow/pkg/metrics"
	"github.com/sourcegraph/conc/panics"
)

const (
	defaultWorkerMultiplier = 4
	defaultTaskTimeout      = 15 * time.Second
	poolShutdownTimeout     = 30 * time.Second
	idlePollInterval        = 2 * time.Millisecond
)

// Task outcomes used as metric labels.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomePanic   = "panic"
	outcomeTimeout = "timeout"
	outcomeDropped = "dropped"
)

// ErrStopped is returned when submitting to a pool that is shutting down.
var ErrStopped = errors.New("worker pool stopped")

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// InMemoryWorker pulls tasks and runs them one at a time.
type InMemoryWorker struct {
	queue       Queue
	name        string
	taskTimeout time.Duration
	onDone      func(t queue.Task, err error)

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		name:        "worker",
		taskTimeout: defaultTaskTimeout,
		onDone:      func(queue.Task, error) {},
		done:        make(chan struct{}),
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes tasks until the queue closes. Buffered tasks are drained
// after ctx is cancelled; each still gets its own timeout.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	base := context.WithoutCancel(ctx)
	for task := range w.queue.Dequeue(ctx) {
		w.onDone(task, w.process(base, task))
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(base context.Context, t queue.Task) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(base, w.taskTimeout)
	defer cancel()

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = t.Run(ctx) })

	outcome := outcomeOK
	if r := pc.Recovered(); r != nil {
		outcome = outcomePanic
		err = r.AsError()
	} else if err != nil {
		outcome = outcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = outcomeTimeout
		}
	}

	elapsed := time.Since(start)
	metrics.RecordTask(t.Name, outcome, float64(elapsed.Milliseconds()))
	if err != nil {
		w.logger.Warn(ctx, "side-effect task failed",
			logger.String("task", t.Name),
			logger.String("key", t.Key),
			logger.String("outcome", outcome),
			logger.Duration("elapsed", elapsed),
			logger.Duration("queued", start.Sub(t.EnqueuedAt)),
			logger.Error(err))
		return err
	}
	w.logger.Debug(ctx, "side-effect task done",
		logger.String("task", t.Name),
		logger.String("key", t.Key),
		logger.Duration("elapsed", elapsed))
	return nil
}

// Pool fans tasks out over a fixed set of workers and deduplicates replays.
type Pool struct {
	workers []*InMemoryWorker
	queue   queue.Queue
	deduper dedupe.Deduper
	pending atomic.Int64
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers over q.
func NewPool(workerCount int, q queue.Queue, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{
		queue:  q,
		logger: logger.NewNop(),
	}
	cfg := poolConfig{taskTimeout: defaultTaskTimeout}
	for _, opt := range opts {
		opt(p, &cfg)
	}
	p.logger = p.logger.Named("worker-pool")

	p.workers = make([]*InMemoryWorker, workerCount)
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
			WithTaskTimeout(cfg.taskTimeout),
			withOnDone(p.finish),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Submit schedules t without blocking. A replayed key is skipped and reported
// as accepted. A full queue drops the task, logs it and rolls back the key so
// a later replay may try again.
func (p *Pool) Submit(ctx context.Context, t queue.Task) error {
	if p.queue.IsClosed() {
		return ErrStopped
	}
	if t.Key != "" && p.deduper != nil && p.deduper.SeenAndRecord(ctx, t.Key) {
		metrics.RecordTaskDeduplicated(t.Name)
		return nil
	}

	p.pending.Add(1)
	if !p.queue.Enqueue(ctx, t) {
		p.pending.Add(-1)
		if t.Key != "" && p.deduper != nil {
			p.deduper.Unrecord(ctx, t.Key)
		}
		metrics.RecordTask(t.Name, outcomeDropped, 0)
		p.logger.Warn(ctx, "side-effect task dropped: queue full",
			logger.String("task", t.Name),
			logger.String("key", t.Key))
		return fmt.Errorf("task %s dropped: queue full", t.Name)
	}
	return nil
}

// finish settles a task. A failed task releases its key so a later replay
// can run it again.
func (p *Pool) finish(t queue.Task, err error) {
	if err != nil && t.Key != "" && p.deduper != nil {
		p.deduper.Unrecord(context.Background(), t.Key)
	}
	p.pending.Add(-1)
}

// Pending reports tasks accepted but not yet finished.
func (p *Pool) Pending() int64 { return p.pending.Load() }

// Idle blocks until every accepted task has finished or ctx ends.
func (p *Pool) Idle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for p.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing task queue", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
