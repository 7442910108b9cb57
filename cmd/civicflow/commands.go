package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/civicflow/internal/adapters/http/api"
	"github.com/okian/civicflow/internal/config"
	"github.com/okian/civicflow/internal/loadgen"
	"github.com/okian/civicflow/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "civicflow",
		Short:         "Civic issue reporting service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live updates and side-effect workers",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "reset-monthly",
		Short: "Zero monthly points for users not yet reset this period",
		RunE:  runResetMonthly,
	})
	root.AddCommand(newLoadgenCmd())
	return root
}

func newLoadgenCmd() *cobra.Command {
	cfg := loadgen.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive a running instance with synthetic reports and verify points",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := logger.Init(); err != nil {
				return err
			}
			stats, err := loadgen.Run(ctx, cfg, logger.Named("loadgen"))
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "submitted=%d resolved=%d failed=%d verified=%d in %s\n",
					stats.Submitted, stats.Resolved, stats.Failed, stats.Verified, stats.Duration.Round(time.Millisecond))
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the service")
	f.IntVar(&cfg.Reports, "reports", cfg.Reports, "Number of reports to submit")
	f.IntVar(&cfg.Users, "users", cfg.Users, "Number of distinct submitters")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent requests in flight")
	f.Float64Var(&cfg.ResolveRatio, "resolve-ratio", cfg.ResolveRatio, "Share of reports to acknowledge and resolve")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.Settle, "settle", cfg.Settle, "How long to wait for rewards to land")
	return cmd
}

// setup initializes logging and loads configuration (defaults -> optional
// file -> env).
func setup(ctx context.Context) (*config.Config, logger.Logger, error) {
	if err := logger.Init(); err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	log := logger.Get()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return nil, nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}

	c, err := build(ctx, cfg, log, true)
	if err != nil {
		log.Error(ctx, "failed to wire service", logger.Error(err))
		return err
	}
	defer c.close(context.WithoutCancel(ctx))

	if err := c.svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return err
	}

	apiServer := api.NewServer(c.svc,
		api.WithLiveHandler(c.hub),
		api.WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		api.WithLogger(log.Named("api")),
	)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	c.hub.Close()
	if err := c.svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

func runResetMonthly(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, err := setup(ctx)
	if err != nil {
		return err
	}
	c, err := build(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer c.close(ctx)

	n, err := c.svc.ResetMonthly(ctx)
	if err != nil {
		log.Error(ctx, "monthly reset failed", logger.Error(err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reset %d users\n", n)
	return nil
}
