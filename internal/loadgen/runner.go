package loadgen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/okian/civicflow/internal/domain/model"
	"github.com/okian/civicflow/pkg/logger"
)

// Run executes a complete load run against cfg.BaseURL.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Stats, error) {
	cfg.normalize()
	if log == nil {
		log = logger.NewNop()
	}
	stats := &Stats{StartTime: time.Now()}
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("reports", cfg.Reports),
		logger.Int("users", cfg.Users),
		logger.Int("workers", cfg.Workers),
		logger.Float64("resolveRatio", cfg.ResolveRatio))

	if err := client.waitHealthy(ctx, cfg.Timeout); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	p := newPlan(cfg, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))) //nolint:gosec // synthetic data

	steps := []struct {
		name string
		run  func(context.Context, *HTTPClient, Config, *plannedReport) (int64, error)
		ctr  *int64
	}{
		{"submit", submitStep, &stats.Submitted},
		{"upvote", upvoteStep, &stats.Upvoted},
		{"acknowledge", acknowledgeStep, &stats.Acknowledged},
		{"resolve", resolveStep, &stats.Resolved},
	}
	for _, st := range steps {
		start := time.Now()
		runStep(ctx, cfg.Workers, p.reports, func(ctx context.Context, r *plannedReport) {
			n, err := st.run(ctx, client, cfg, r)
			atomic.AddInt64(st.ctr, n)
			if err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				log.Debug(ctx, "step failed", logger.String("step", st.name), logger.Error(err))
			}
		})
		log.Info(ctx, "step done",
			logger.String("step", st.name),
			logger.Int64("ok", atomic.LoadInt64(st.ctr)),
			logger.Duration("elapsed", time.Since(start)))
		if err := ctx.Err(); err != nil {
			return stats, err
		}
	}

	verified, err := verify(ctx, client, cfg, p, log)
	stats.Verified = verified
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	if err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	log.Info(ctx, "load run completed successfully")
	return stats, nil
}

// runStep fans fn out over reports with at most workers in flight.
func runStep(ctx context.Context, workers int, reports []*plannedReport, fn func(context.Context, *plannedReport)) {
	wp := pool.New().WithMaxGoroutines(workers)
	for _, r := range reports {
		if ctx.Err() != nil {
			break
		}
		wp.Go(func() { fn(ctx, r) })
	}
	wp.Wait()
}

func submitStep(ctx context.Context, c *HTTPClient, _ Config, r *plannedReport) (int64, error) {
	var out model.Report
	if err := c.do(ctx, http.MethodPost, "/reports", r.Owner, false, r.Submit, &out); err != nil {
		return 0, err
	}
	r.id = out.ID
	return 1, nil
}

func upvoteStep(ctx context.Context, c *HTTPClient, _ Config, r *plannedReport) (int64, error) {
	if r.id == "" {
		return 0, nil
	}
	var n int64
	for _, u := range r.Upvoters {
		if err := c.do(ctx, http.MethodPost, "/reports/"+r.id+"/upvote", u, false, nil, nil); err != nil {
			return n, err
		}
		r.upvoted = append(r.upvoted, u)
		n++
	}
	return n, nil
}

func acknowledgeStep(ctx context.Context, c *HTTPClient, cfg Config, r *plannedReport) (int64, error) {
	if r.id == "" || !r.Resolve {
		return 0, nil
	}
	if err := c.do(ctx, http.MethodPost, "/reports/"+r.id+"/acknowledge", cfg.AdminID, true, nil, nil); err != nil {
		r.Resolve = false
		return 0, err
	}
	return 1, nil
}

// resolveStep resolves as the owner, the self-service path.
func resolveStep(ctx context.Context, c *HTTPClient, _ Config, r *plannedReport) (int64, error) {
	if r.id == "" || !r.Resolve {
		return 0, nil
	}
	if err := c.do(ctx, http.MethodPost, "/reports/"+r.id+"/resolve", r.Owner, false, nil, nil); err != nil {
		return 0, err
	}
	r.resolved = true
	return 1, nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int64("submitted", stats.Submitted),
		logger.Int64("upvoted", stats.Upvoted),
		logger.Int64("acknowledged", stats.Acknowledged),
		logger.Int64("resolved", stats.Resolved),
		logger.Int64("failed", stats.Failed),
		logger.Int("usersVerified", stats.Verified),
		logger.Duration("duration", stats.Duration),
		logger.Float64("reportsPerSecond", perSecond))
}
