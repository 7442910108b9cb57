// Package mlqueue is the enqueue half of the classification pipeline: it hands
// report payloads to the external classifier's work queue.
package mlqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Modes.
const (
	ModeRedis    = "redis"
	ModeMemory   = "memory"
	ModeDisabled = "disabled"
)

// DefaultKey is the list the classifier worker pops from.
const DefaultKey = "ml_classification_queue"

// ErrDisabled is returned by the disabled queue. Callers treat it as a skip,
// not a failure.
var ErrDisabled = errors.New("classification queue disabled")

// Job is the payload the classifier consumes.
type Job struct {
	ReportID    string    `json:"reportId"`
	Description string    `json:"description"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Title       string    `json:"title"`
	Timestamp   time.Time `json:"timestamp"`
}

// Queue is push plus length. Delivery is at-least-once and unordered.
type Queue interface {
	Push(ctx context.Context, job Job) error
	Len(ctx context.Context) (int64, error)
	Mode() string
}

// MemoryQueue keeps jobs in process. Nothing consumes it; it exists for local
// runs and tests.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []Job
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) Push(_ context.Context, job Job) error {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

func (q *MemoryQueue) Mode() string { return ModeMemory }

// Jobs returns a copy of everything pushed so far.
func (q *MemoryQueue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.jobs...)
}

// Disabled drops every job.
type Disabled struct{}

func (Disabled) Push(context.Context, Job) error    { return ErrDisabled }
func (Disabled) Len(context.Context) (int64, error) { return 0, nil }
func (Disabled) Mode() string                       { return ModeDisabled }
