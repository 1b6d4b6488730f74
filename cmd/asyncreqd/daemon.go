package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/asyncreq/engine/internal/config"
	"github.com/asyncreq/engine/internal/engine"
	"github.com/asyncreq/engine/internal/logging"
)

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func daemonCmd() *cobra.Command {
	var (
		redisAddr   string
		logLevel    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the asyncreq engine as a daemon",
		Long:  "Run the Processor, TaskMonitor, and MonitorThread, accepting requests through the Producer API until a shutdown signal drains and stops them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("redis") {
				cfg.Redis.Addr = redisAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Daemon.MetricsAddr = metricsAddr
			}

			ctx := context.Background()
			if err := engine.InitObservability(ctx, cfg); err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			defer engine.ShutdownObservability(ctx)

			e, err := engine.New(cfg)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}

			if err := e.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}

			var metricsServer *http.Server
			if cfg.Daemon.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(e.Stats().Registry(), promhttp.HandlerOpts{}))
				metricsServer = &http.Server{Addr: cfg.Daemon.MetricsAddr, Handler: mux}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logging.Op().Error("metrics server stopped", "error", err)
					}
				}()
				logging.Op().Info("metrics endpoint started", "addr", cfg.Daemon.MetricsAddr)
			}

			logging.Op().Info("asyncreqd started",
				"redis", cfg.Redis.Addr,
				"max_connections", cfg.Processor.MaxConnections,
				"log_level", cfg.Daemon.LogLevel)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logging.Op().Info("shutdown signal received, draining")

			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				metricsServer.Shutdown(shutdownCtx)
				cancel()
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Processor.ShutdownTimeout)
			defer cancel()
			if err := e.Stop(stopCtx); err != nil {
				return fmt.Errorf("stop engine: %w", err)
			}
			logging.Op().Info("asyncreqd stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address (e.g., localhost:6379)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus /metrics address (e.g., :9090); empty disables it")

	return cmd
}

// drainCmd implements a ProcessIdentity-aware shutdown: since
// asyncreqd's Processor has no separate admin surface for a second CLI
// invocation to reach across processes, drain runs the same
// Drain-then-poll-Idle sequence a signal handler would, against an
// Engine built in this process. It is meant for an operator who wants
// to drain and exit without tearing down Redis-held inflight state for
// other processes in the deployment, and exits once this process's
// share of inflight tasks reaches zero.
func drainCmd() *cobra.Command {
	var (
		redisAddr string
		pollEvery time.Duration
		drainFor  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Stop accepting new work and wait for in-flight tasks to finish",
		Long:  "Starts an Engine bound to the same Redis the daemon uses, immediately calls Drain, and polls Idle until every in-flight task this process would have owned has finished or the timeout elapses.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("redis") {
				cfg.Redis.Addr = redisAddr
			}

			ctx, cancel := context.WithTimeout(context.Background(), drainFor)
			defer cancel()

			e, err := engine.New(cfg)
			if err != nil {
				return fmt.Errorf("build engine: %w", err)
			}
			if err := e.Start(ctx); err != nil {
				return fmt.Errorf("start engine: %w", err)
			}
			if err := e.Drain(); err != nil {
				return fmt.Errorf("drain: %w", err)
			}

			ticker := time.NewTicker(pollEvery)
			defer ticker.Stop()
			for {
				if e.Drained() {
					fmt.Println("drained")
					return e.Stop(context.Background())
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("drain: timed out waiting for idle")
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address (e.g., localhost:6379)")
	cmd.Flags().DurationVar(&pollEvery, "poll-interval", time.Second, "How often to poll Idle")
	cmd.Flags().DurationVar(&drainFor, "timeout", 2*time.Minute, "Maximum time to wait for drain to complete")

	return cmd
}
