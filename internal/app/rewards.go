package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/internal/domain/scoring"
	"github.com/okian/civicflow/internal/domain/types"
	"github.com/okian/civicflow/pkg/logger"
	"github.com/okian/civicflow/pkg/metrics"
)

const defaultLeaderboardLimit = 10

// applyResolutionRewards credits the submitter and each distinct upvoter.
// Credits run in parallel; one failing does not stop the others.
func (s *Service) applyResolutionRewards(ctx context.Context, r *model.Report) error {
	deltas := scoring.ResolutionRewards(r)
	if len(deltas) == 0 {
		return nil
	}
	now := s.now()
	period := scoring.PeriodStart(now)

	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.rewardConcurrency)
	var total int
	for _, d := range deltas {
		total += int(d.Lifetime)
		p.Go(func(ctx context.Context) error {
			u, err := s.users.AddPoints(ctx, d, period, now)
			if err != nil {
				return fmt.Errorf("credit %s: %w", d.UserID, err)
			}
			s.logger.Debug(ctx, "points credited",
				logger.String("userId", u.ID),
				logger.String("reportId", r.ID),
				logger.Int64("lifetime", u.LifetimePoints),
				logger.String("badge", string(scoring.BadgeFor(u.LifetimePoints))))
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	metrics.RecordRewardsApplied(total)
	return nil
}

// Leaderboard ranks users by points from reports resolved this UTC month.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	if limit < 1 {
		limit = defaultLeaderboardLimit
	}
	if limit > s.maxLeaderboard {
		limit = s.maxLeaderboard
	}
	counts, err := s.reports.ResolvedCountsSince(ctx, scoring.PeriodStart(s.now()))
	if err != nil {
		return nil, fmt.Errorf("resolved counts: %w", err)
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	rows := scoring.MonthlyStandings(users, counts, limit)
	out := make([]types.LeaderboardEntry, len(rows))
	for i, row := range rows {
		out[i] = types.LeaderboardEntry{
			Rank:          i + 1,
			UserID:        row.UserID,
			MonthlyPoints: row.MonthlyPoints,
			Badge:         string(row.Badge),
		}
	}
	return out, nil
}

// Standing returns a user's points and badge. Monthly points left over from
// an earlier period read as zero until the reset lands.
func (s *Service) Standing(ctx context.Context, userID string) (types.UserStanding, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return types.UserStanding{}, err
	}
	monthly := u.MonthlyPoints
	if u.LastMonthlyReset.Before(scoring.PeriodStart(s.now())) {
		monthly = 0
	}
	return types.UserStanding{
		UserID:         u.ID,
		LifetimePoints: u.LifetimePoints,
		MonthlyPoints:  monthly,
		Badge:          string(scoring.BadgeFor(u.LifetimePoints)),
	}, nil
}

// ResetMonthly zeroes monthly points for every user not yet reset this
// period. Running it again in the same period changes nothing.
func (s *Service) ResetMonthly(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.users.ResetMonthly(ctx, scoring.PeriodStart(now), now)
	if err != nil {
		return 0, fmt.Errorf("monthly reset: %w", err)
	}
	metrics.RecordMonthlyReset(int(n))
	if n > 0 {
		s.logger.Info(ctx, "monthly points reset",
			logger.Int64("users", n),
			logger.String("period", scoring.PeriodStart(now).Format("2006-01")))
	}
	return n, nil
}

func (s *Service) monthlyResetLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.loops.Done()
	ticker := time.NewTicker(s.resetInterval)
	defer ticker.Stop()

	for {
		if _, err := s.ResetMonthly(ctx); err != nil {
			s.logger.Error(ctx, "scheduled monthly reset failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}
