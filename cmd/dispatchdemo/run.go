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

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-cycle-dispatcher/config"
	"github.com/Swind/go-cycle-dispatcher/core"
	obslogrus "github.com/Swind/go-cycle-dispatcher/observability/logrus"
	obsprom "github.com/Swind/go-cycle-dispatcher/observability/prometheus"
)

const shutdownTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Duration        time.Duration
	Producers       int
	ProduceInterval time.Duration
	SpawnInterval   time.Duration
	Timeout         time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulated host loop",
		Long: `Start a host loop that drains the dispatcher every frame while
producer goroutines submit score updates and enemies patrol until destroyed.

Example:
  dispatchdemo run --duration 10s --producers 8
  DISPATCHER_LOG_LEVEL=debug dispatchdemo run -c dispatcher.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().IntVar(&opts.Producers, "producers", 4, "number of producer goroutines")
	cmd.Flags().DurationVar(&opts.ProduceInterval, "produce-interval", 10*time.Millisecond, "delay between submissions per producer")
	cmd.Flags().DurationVar(&opts.SpawnInterval, "spawn-interval", 250*time.Millisecond, "delay between enemy spawns")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 200*time.Millisecond, "how long a producer waits for the main context")

	return cmd
}

func runDemo(cmd *cobra.Command, opts *RunOptions) error {
	if opts.Producers < 0 {
		return fmt.Errorf("invalid producers %d: must not be negative", opts.Producers)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := obslogrus.NewWithOptions(cmd.ErrOrStderr(), cfg.LogLevel(), cfg.Log.Format)

	reg := prom.NewRegistry()
	var metrics core.Metrics
	var poller *obsprom.SnapshotPoller
	if cfg.Metrics.Enabled {
		exporter, err := obsprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, obsprom.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		metrics = exporter
		poller, err = obsprom.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval)
		if err != nil {
			return fmt.Errorf("failed to create snapshot poller: %w", err)
		}
	}

	d := core.NewDispatcher(cfg.DispatcherConfig(logger, metrics))
	host := core.NewHostLoop(d, cfg.HostLoopConfig(logger))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	if err := host.Start(ctx); err != nil {
		return err
	}
	if poller != nil {
		poller.AddDispatcher(d.Name(), d)
		poller.AddHost(d.Name(), host)
		poller.Start(ctx)
		defer poller.Stop()
	}

	w := newWorld(d, logger, opts.Timeout)
	g, gctx := errgroup.WithContext(ctx)
	for i := range opts.Producers {
		g.Go(func() error { return w.produce(gctx, i, opts.ProduceInterval) })
	}
	g.Go(func() error { return w.spawnLoop(gctx, opts.SpawnInterval) })

	if cfg.Metrics.Enabled {
		httpServer := newServer(d, host, reg, logger).httpServer(cfg.Metrics.ListenAddr)
		g.Go(func() error {
			logger.Info("server listening", core.F("addr", cfg.Metrics.ListenAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Host loop running as %q. Press Ctrl-C to stop.\n", d.Name())
	runErr := g.Wait()

	host.Stop()
	d.Shutdown()

	collectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	ownerGone := w.collectPatrols(collectCtx)

	stats := d.Stats()
	logger.Info("host loop stopped",
		core.F("frames", host.Frames()),
		core.F("executed", stats.Executed),
		core.F("rejected", stats.Rejected),
		core.F("spawned", w.spawned.Load()),
		core.F("owner_gone", ownerGone),
		core.F("timed_out", w.timedOut.Load()),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "frames=%d executed=%d owner_gone=%d\n",
		host.Frames(), stats.Executed, ownerGone)

	return runErr
}
