package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/okian/civicflow/internal/adapters/mq/mlqueue"
	"github.com/okian/civicflow/internal/adapters/repository"
	service "github.com/okian/civicflow/internal/app"
	"github.com/okian/civicflow/internal/domain/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (e *recordingEmitter) Emit(topic string, _ any) {
	e.mu.Lock()
	e.topics = append(e.topics, topic)
	e.mu.Unlock()
}

func (e *recordingEmitter) Topics() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.topics...)
}

type fixture struct {
	svc      *service.Service
	reports  *repository.MemoryReports
	users    *repository.MemoryUsers
	inbox    *repository.MemoryNotifications
	audit    *repository.MemoryAudit
	classify *mlqueue.MemoryQueue
	emitter  *recordingEmitter
	clock    *fakeClock
}

func newFixture(extra ...service.Option) *fixture {
	f := &fixture{
		reports:  repository.NewMemoryReports(),
		users:    repository.NewMemoryUsers(),
		inbox:    repository.NewMemoryNotifications(),
		audit:    repository.NewMemoryAudit(),
		classify: mlqueue.NewMemoryQueue(),
		emitter:  &recordingEmitter{},
		clock:    newClock(),
	}
	opts := []service.Option{
		service.WithReportStore(f.reports),
		service.WithUserStore(f.users),
		service.WithNotificationStore(f.inbox),
		service.WithAuditStore(f.audit),
		service.WithClassificationQueue(f.classify),
		service.WithEmitter(f.emitter),
		service.WithClock(f.clock.Now),
		service.WithWorkerCount(4),
		service.WithQueueSize(1000),
	}
	f.svc = service.New(append(opts, extra...)...)
	return f
}

func (f *fixture) idle() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.svc.Idle(ctx)
}

func (f *fixture) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = f.svc.Stop(ctx)
}

func submitReq(by string) types.SubmitReport {
	return types.SubmitReport{
		Description: "Overflowing bin on the corner",
		Latitude:    12.9716,
		Longitude:   77.5946,
		Address:     "MG Road",
		SubmittedBy: by,
	}
}
