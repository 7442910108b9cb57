package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/civicflow/internal/domain/types"
	"github.com/okian/civicflow/pkg/logger"
)

// ErrMismatch is returned when the service's points disagree with the plan.
var ErrMismatch = errors.New("points mismatch")

const maxBoardLimit = 100

// verify waits for every user's lifetime points to match the plan, then checks
// that leaderboard rows for run users carry the expected monthly points. It
// returns the number of users checked.
func verify(ctx context.Context, c *HTTPClient, cfg Config, p *plan, log logger.Logger) (int, error) {
	want := p.expectations()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = cfg.Settle
	err := backoff.Retry(func() error {
		for _, u := range p.users {
			var st types.UserStanding
			err := c.do(ctx, http.MethodGet, "/users/me", u, false, nil, &st)
			switch {
			case isNotFound(err):
				st.LifetimePoints = 0
			case err != nil:
				return err
			}
			if st.LifetimePoints != want.lifetime[u] {
				return fmt.Errorf("%w: %s has %d lifetime points, want %d", ErrMismatch, u, st.LifetimePoints, want.lifetime[u])
			}
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return 0, err
	}

	var board []types.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, "/leaderboard?limit="+strconv.Itoa(maxBoardLimit), "", false, nil, &board); err != nil {
		return len(p.users), err
	}
	seen := 0
	for _, row := range board {
		pts, ok := want.board[row.UserID]
		if !ok {
			continue
		}
		seen++
		if row.MonthlyPoints != pts {
			return len(p.users), fmt.Errorf("%w: leaderboard has %s at %d, want %d", ErrMismatch, row.UserID, row.MonthlyPoints, pts)
		}
	}
	log.Info(ctx, "points verified",
		logger.Int("users", len(p.users)),
		logger.Int("leaderboardRows", seen))
	return len(p.users), nil
}
