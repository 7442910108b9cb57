package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/option"

	"github.com/okian/civicflow/internal/adapters/broadcast"
	"github.com/okian/civicflow/internal/adapters/ledger"
	"github.com/okian/civicflow/internal/adapters/mq/mlqueue"
	"github.com/okian/civicflow/internal/adapters/push"
	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/internal/adapters/repository/mongostore"
	service "github.com/okian/civicflow/internal/app"
	"github.com/okian/civicflow/internal/config"
	"github.com/okian/civicflow/pkg/logger"
)

// components is everything a command needs, plus teardown in reverse order.
type components struct {
	svc     *service.Service
	hub     *broadcast.Hub
	closers []func(context.Context) error
	log     logger.Logger
}

func (c *components) close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			c.log.Warn(ctx, "teardown failed", logger.Error(err))
		}
	}
}

// build wires stores, the classification queue, the ledger, push and the live
// hub into a service. withLoop enables the periodic monthly reset.
func build(ctx context.Context, cfg *config.Config, log logger.Logger, withLoop bool) (*components, error) {
	c := &components{log: log}
	ok := false
	defer func() {
		if !ok {
			c.close(ctx)
		}
	}()

	var (
		stores []service.Option
		audit  repository.AuditStore
	)
	switch cfg.Store {
	case config.StoreMongo:
		db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB, log.Named("mongo"))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db.Close)
		audit = db.Audit()
		stores = []service.Option{
			service.WithReportStore(db.Reports()),
			service.WithUserStore(db.Users()),
			service.WithNotificationStore(db.Notifications()),
			service.WithAuditStore(audit),
		}
	default:
		audit = repository.NewMemoryAudit()
		stores = []service.Option{
			service.WithReportStore(repository.NewMemoryReports()),
			service.WithUserStore(repository.NewMemoryUsers()),
			service.WithNotificationStore(repository.NewMemoryNotifications()),
			service.WithAuditStore(audit),
		}
	}
	classify, err := buildClassifyQueue(cfg, c)
	if err != nil {
		return nil, err
	}

	recorder, err := buildRecorder(ctx, cfg, audit, log)
	if err != nil {
		return nil, err
	}

	var sender push.Sender = push.Nop{}
	if cfg.FCMProjectID != "" {
		var opts []option.ClientOption
		if cfg.FCMCredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FCMCredentialsFile))
		}
		fcm, err := push.NewFCM(ctx, cfg.FCMProjectID, log.Named("push"), opts...)
		if err != nil {
			return nil, err
		}
		sender = fcm
	} else {
		log.Warn(ctx, "push disabled: no FCM project configured")
	}

	c.hub = broadcast.NewHub(broadcast.WithLogger(log.Named("live")))

	opts := append(stores,
		service.WithLogger(log.Named("service")),
		service.WithClassificationQueue(classify),
		service.WithRecorder(recorder),
		service.WithPushSender(sender),
		service.WithEmitter(c.hub),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.TaskQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithTaskTimeout(time.Duration(cfg.TaskTimeoutMS)*time.Millisecond),
		service.WithMinDwell(time.Duration(cfg.DeleteMinDwellMinutes)*time.Minute),
		service.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
	)
	if withLoop {
		opts = append(opts, service.WithMonthlyResetInterval(time.Duration(cfg.MonthlyResetIntervalMS)*time.Millisecond))
	}
	c.svc = service.New(opts...)
	ok = true
	return c, nil
}

func buildClassifyQueue(cfg *config.Config, c *components) (mlqueue.Queue, error) {
	switch cfg.ClassifyQueue {
	case config.QueueRedis:
		client, err := mlqueue.Dial(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("classification queue: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error {
			client.Close()
			return nil
		})
		return mlqueue.NewRedisQueue(client, cfg.RedisQueueKey), nil
	case config.QueueDisabled:
		return mlqueue.Disabled{}, nil
	default:
		return mlqueue.NewMemoryQueue(), nil
	}
}

// buildRecorder returns a recorder in degraded mode when no signing key is
// configured. A malformed key is a startup error.
func buildRecorder(ctx context.Context, cfg *config.Config, audit repository.AuditStore, log logger.Logger) (ledger.Recorder, error) {
	opts := []ledger.RecorderOption{
		ledger.WithTimeout(time.Duration(cfg.LedgerTimeoutMS) * time.Millisecond),
		ledger.WithLogger(log.Named("ledger")),
	}
	client, err := ledger.NewClient(cfg.LedgerNodeURL, cfg.LedgerPrivateKey, cfg.LedgerContractAddress)
	switch {
	case errors.Is(err, ledger.ErrNoCredentials):
		log.Warn(ctx, "ledger degraded: no signing key configured, events get synthetic refs")
		return ledger.NewRecorder(nil, audit, opts...), nil
	case err != nil:
		return nil, fmt.Errorf("ledger client: %w", err)
	}
	log.Info(ctx, "ledger client ready", logger.String("address", client.Address()))
	return ledger.NewRecorder(client, audit, opts...), nil
}
