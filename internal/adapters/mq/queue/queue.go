// Package queue holds detached side-effect tasks until a worker picks them up.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/civicflow/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Task is one detached side effect. Run receives a context bounded by the
// worker's task timeout and never the originating request's context.
type Task struct {
	// Name labels metrics and logs, e.g. "chain-record".
	Name string
	// Key deduplicates replays, e.g. "notify:acknowledged:<reportId>". Empty
	// keys are never deduplicated.
	Key string
	Run func(ctx context.Context) error

	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue returns false if the queue is full or closed.
	Enqueue(ctx context.Context, t Task) bool

	// Dequeue returns the receive side. It is closed after Close.
	Dequeue(ctx context.Context) <-chan Task

	Len(ctx context.Context) int

	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue with a buffered channel.
type InMemoryQueue struct {
	tasks    chan Task
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded in-memory task queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.tasks = make(chan Task, q.capacity)

	metrics.UpdateTaskQueueCapacity(q.capacity)
	metrics.UpdateTaskQueueSize(0)
	return q
}

// Enqueue never blocks: a full queue rejects the task.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	select {
	case q.tasks <- t:
		metrics.UpdateTaskQueueSize(len(q.tasks))
		return true
	case <-ctx.Done():
		return false
	default:
		return false
	}
}

// Dequeue exposes the buffered channel directly; workers share it.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Task {
	return q.tasks
}

// Len returns the current number of queued tasks.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.tasks)
	metrics.UpdateTaskQueueSize(size)
	return size
}

// Close stops intake. Workers drain what is already buffered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.tasks)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
