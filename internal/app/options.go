package service

import (
	"time"

	"github.com/okian/civicflow/internal/adapters/broadcast"
	"github.com/okian/civicflow/internal/adapters/ledger"
	"github.com/okian/civicflow/internal/adapters/mq/mlqueue"
	"github.com/okian/civicflow/internal/adapters/push"
	"github.com/okian/civicflow/internal/adapters/repository"
	"github.com/okian/civicflow/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithReportStore sets the authoritative report store.
func WithReportStore(r repository.ReportStore) Option {
	return func(s *Service) { s.reports = r }
}

// WithUserStore sets the points ledger.
func WithUserStore(u repository.UserStore) Option {
	return func(s *Service) { s.users = u }
}

// WithNotificationStore sets the inbox store.
func WithNotificationStore(n repository.NotificationStore) Option {
	return func(s *Service) { s.inbox = n }
}

// WithAuditStore sets the milestone audit log.
func WithAuditStore(a repository.AuditStore) Option {
	return func(s *Service) { s.audit = a }
}

// WithRecorder sets the chain recorder.
func WithRecorder(r ledger.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithClassificationQueue sets the classifier work queue.
func WithClassificationQueue(q mlqueue.Queue) Option {
	return func(s *Service) { s.classify = q }
}

// WithEmitter sets the live broadcast channel.
func WithEmitter(e broadcast.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithPushSender sets the device push sender.
func WithPushSender(p push.Sender) Option {
	return func(s *Service) { s.sender = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWorkerCount sets the number of side-effect workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the side-effect backlog bound.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many side-effect keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithTaskTimeout bounds each side effect.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// WithRewardConcurrency bounds parallel point credits per resolution.
func WithRewardConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rewardConcurrency = n
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page size.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboard = n
		}
	}
}

// WithMonthlyResetInterval enables the periodic monthly reset loop.
func WithMonthlyResetInterval(d time.Duration) Option {
	return func(s *Service) { s.resetInterval = d }
}

// WithMinDwell sets how long an acknowledged report must wait before deletion.
// Zero disables the check.
func WithMinDwell(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.minDwell = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
