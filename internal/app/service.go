// Package service is the report lifecycle orchestrator. Every action commits
// one atomic store mutation and then spawns its side effects on a bounded task
// pool; nothing downstream is awaited on the request path.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/civicflow/internal/adapters/broadcast"
	"github.com/okian/civicflow/internal/adapters/ledger"
	"github.com/okian/civicflow/internal/adapters/mq/mlqueue"
	taskqueue "github.com/okian/civicflow/internal/adapters/mq/queue"
	workerpool "github.com/okian/civicflow/internal/adapters/mq/worker"
	"github.com/okian/civicflow/internal/adapters/push"
	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/app/notify"
	"github.com/okian/civicflow/internal/domain/dedupe"
	"github.com/okian/civicflow/internal/domain/lifecycle"
	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/pkg/logger"
	"github.com/okian/civicflow/pkg/metrics"
)

// Service coordinates the report lifecycle. It holds no report state.
type Service struct {
	mu     sync.Mutex
	poolMu sync.RWMutex

	// Authoritative stores
	reports repository.ReportStore
	users   repository.UserStore
	inbox   repository.NotificationStore
	audit   repository.AuditStore

	// Downstream collaborators
	recorder ledger.Recorder
	classify mlqueue.Queue
	emitter  broadcast.Emitter
	sender   push.Sender
	notifier *notify.Service

	policy *lifecycle.Policy
	now    func() time.Time

	// Side-effect pool
	tasks   taskqueue.Queue
	deduper dedupe.Deduper
	pool    *workerpool.Pool

	// Configuration
	workerCount       int
	queueSize         int
	dedupeSize        int
	taskTimeout       time.Duration
	rewardConcurrency int
	maxLeaderboard    int
	resetInterval     time.Duration
	minDwell          time.Duration

	// State
	started bool
	stopCh  chan struct{}
	loops   sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. Unset stores default to in-memory ones, the
// ledger to degraded mode, classification to disabled and broadcast to a no-op.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:       runtime.NumCPU() * 4,
		queueSize:         10_000,
		dedupeSize:        100_000,
		taskTimeout:       15 * time.Second,
		rewardConcurrency: 8,
		maxLeaderboard:    100,
		minDwell:          24 * time.Hour,
		now:               time.Now,
		stopCh:            make(chan struct{}),
		logger:            logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.reports == nil {
		s.reports = repository.NewMemoryReports()
	}
	if s.users == nil {
		s.users = repository.NewMemoryUsers()
	}
	if s.inbox == nil {
		s.inbox = repository.NewMemoryNotifications()
	}
	if s.audit == nil {
		s.audit = repository.NewMemoryAudit()
	}
	if s.recorder == nil {
		s.recorder = ledger.NewRecorder(nil, s.audit,
			ledger.WithRecorderClock(s.now),
			ledger.WithLogger(s.logger.Named("ledger")))
	}
	if s.classify == nil {
		s.classify = mlqueue.Disabled{}
	}
	if s.emitter == nil {
		s.emitter = broadcast.Nop{}
	}
	if s.sender == nil {
		s.sender = push.Nop{}
	}

	s.policy = lifecycle.New(lifecycle.WithMinDwell(s.minDwell))
	s.notifier = notify.New(s.inbox, s.users,
		notify.WithSender(s.sender),
		notify.WithClock(s.now),
		notify.WithLogger(s.logger.Named("notify")))

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.tasks, s.pool = s.newPool()
	metrics.UpdateTaskQueueCapacity(s.queueSize)
	return s
}

func (s *Service) newPool() (taskqueue.Queue, *workerpool.Pool) {
	tasks := taskqueue.NewInMemoryQueue(taskqueue.WithCapacity(s.queueSize))
	pool := workerpool.NewPool(s.workerCount, tasks,
		workerpool.WithPoolLogger(s.logger.Named("tasks")),
		workerpool.WithDeduper(s.deduper),
		workerpool.WithPoolTaskTimeout(s.taskTimeout))
	return tasks, pool
}

// workers returns the current task queue and pool; Start replaces both after
// a Stop.
func (s *Service) workers() (taskqueue.Queue, *workerpool.Pool) {
	s.poolMu.RLock()
	defer s.poolMu.RUnlock()
	return s.tasks, s.pool
}

// Start launches the side-effect workers and, when configured, the monthly
// reset loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting report service...")
	if s.tasks.IsClosed() {
		tasks, pool := s.newPool()
		s.poolMu.Lock()
		s.tasks, s.pool = tasks, pool
		s.poolMu.Unlock()
	}
	s.pool.Start(ctx)

	s.stopCh = make(chan struct{})
	if s.resetInterval > 0 {
		s.loops.Add(1)
		go s.monthlyResetLoop(ctx, s.stopCh)
	}

	s.started = true
	s.logger.Info(ctx, "report service started",
		logger.Int("workers", s.workerCount),
		logger.Int("taskQueueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("classification", s.classify.Mode()),
		logger.Duration("minDwell", s.minDwell))
	return nil
}

// Stop drains queued side effects and stops background loops.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping report service...")

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.loops.Wait()

	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "report service stopped")
	return err
}

// Idle blocks until every spawned side effect has finished or ctx ends.
func (s *Service) Idle(ctx context.Context) error {
	_, pool := s.workers()
	return pool.Idle(ctx)
}

// spawn schedules a detached side effect. Failures are logged by the pool;
// nothing is returned to the caller's primary path. Submission ignores the
// caller's cancellation.
func (s *Service) spawn(ctx context.Context, name, key string, run func(context.Context) error) {
	tasks, pool := s.workers()
	err := pool.Submit(context.WithoutCancel(ctx), taskqueue.Task{
		Name:       name,
		Key:        key,
		Run:        run,
		EnqueuedAt: s.now(),
	})
	if errors.Is(err, workerpool.ErrStopped) {
		s.logger.Warn(ctx, "side effect not scheduled: service stopping",
			logger.String("task", name),
			logger.String("key", key))
	}
	metrics.UpdateTaskQueueSize(tasks.Len(ctx))
}

// commit applies t atomically and maps a failed precondition onto the error
// taxonomy using the report as it stood when the write was refused.
func (s *Service) commit(ctx context.Context, id string, t lifecycle.Transition) (*model.Report, error) {
	r, err := s.reports.Transition(ctx, id, t)
	switch {
	case err == nil:
		metrics.RecordTransition(string(t.To))
		return r, nil
	case errors.Is(err, repository.ErrConditionFailed) && r != nil:
		reason := s.policy.Explain(t, r)
		if reason == nil {
			reason = fmt.Errorf("%w: report %s changed concurrently", model.ErrInvalidTransition, id)
		}
		metrics.RecordRejectedAction(string(t.Action), rejectionLabel(reason))
		return nil, reason
	case errors.Is(err, model.ErrNotFound):
		metrics.RecordRejectedAction(string(t.Action), "not_found")
		return nil, err
	default:
		return nil, fmt.Errorf("%s report %s: %w", t.Action, id, err)
	}
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	default:
		return "invalid_transition"
	}
}
