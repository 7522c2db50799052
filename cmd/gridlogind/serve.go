package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hnrobert/gridlogin/internal/daemon"
	"github.com/hnrobert/gridlogin/internal/logger"
	"github.com/hnrobert/gridlogin/internal/metrics"
	"github.com/hnrobert/gridlogin/internal/server"
	"github.com/hnrobert/gridlogin/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the login store fresh and serve the admin API",
	Long: `Run periodic credential sweeps and rate limit expiry, optionally
triggered by file changes, and serve /api/healthz, /metrics and the token
guarded admin endpoints on listen_addr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d, err := daemon.New(cfg, daemon.WithMetrics(metrics.New(reg)))
	if err != nil {
		return err
	}

	var swOpts []sweeper.Option
	if cfg.Watch {
		swOpts = append(swOpts, sweeper.WithWatch(d.WatchPaths))
	}
	sw := sweeper.New(d, cfg.SweepInterval, swOpts...)

	app, err := server.NewApp(d, cfg.AdminSecret, sw, reg)
	if err != nil {
		return err
	}

	logger.Info("gridlogind: serving %s logins from %s", cfg.Protocol, cfg.RootDir)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sw.Run(gctx) })
	if cfg.ListenAddr != "" {
		g.Go(func() error { return server.Serve(gctx, cfg.ListenAddr, app.Routes()) })
	}
	err = g.Wait()
	logger.Info("gridlogind: stopped")
	return err
}
