package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/archive/recorder"
	"mercator-hq/apiflow/pkg/archive/retention"
	"mercator-hq/apiflow/pkg/archive/storage"
	"mercator-hq/apiflow/pkg/cli"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/control"
	"mercator-hq/apiflow/pkg/gateway"
	"mercator-hq/apiflow/pkg/server"
	"mercator-hq/apiflow/pkg/settings"
	"mercator-hq/apiflow/pkg/telemetry/health"
	"mercator-hq/apiflow/pkg/telemetry/logging"
	"mercator-hq/apiflow/pkg/telemetry/metrics"
	"mercator-hq/apiflow/pkg/telemetry/tracing"
)

var runFlags struct {
	settingsPath string
	logLevel     string
	noAutostart  bool
	watch        bool
	dryRun       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the control API and the gateway",
	Long: `Start the control API on the configured loopback address and, unless
disabled, start the gateway from the saved routing settings.

The process runs until it receives SIGINT or SIGTERM, then stops the gateway
and the control API gracefully.

Examples:
  # Start with default config
  apiflow run

  # Use a custom settings file and reload when it changes
  apiflow run --settings ./routes.yaml --watch

  # Validate config without starting anything
  apiflow run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.settingsPath, "settings", "", "override settings file path")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.noAutostart, "no-autostart", false, "do not start the gateway from saved settings")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", false, "reload the gateway when the settings file changes")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.settingsPath != "" {
		cfg.Settings.Path = runFlags.settingsPath
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if runFlags.watch {
		cfg.Settings.Watch = true
	}
	if runFlags.noAutostart {
		cfg.Settings.Autostart = false
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Slog())

	store, err := settings.NewStore(cfg.Settings.Path)
	if err != nil {
		return cli.NewConfigError("settings.path", err.Error())
	}
	saved, err := store.Load()
	if err != nil {
		return cli.NewConfigError("settings", err.Error())
	}

	if runFlags.dryRun {
		if saved != nil {
			if _, err := config.PrepareProxyConfig(saved); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ApiFlow v%s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "Settings: %s\n", store.Path())

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	// Telemetry
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())
	}
	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	opts := []gateway.Option{gateway.WithPersister(store)}
	if collector != nil {
		opts = append(opts, gateway.WithMetrics(collector))
	}
	if tracer.Enabled() {
		opts = append(opts, gateway.WithTracer(tracer))
	}
	manager := gateway.New(cfg, opts...)

	// Archive
	var archiveStore archive.Storage
	if cfg.Archive.Enabled {
		archiveStore, err = storage.Open(cfg.Archive)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open archive: %w", err))
		}
		defer archiveStore.Close()

		rec := recorder.New(archiveStore, &recorder.Config{
			AsyncBuffer:  cfg.Archive.AsyncBuffer,
			WriteTimeout: cfg.Archive.WriteTimeout,
			OnDrop:       collector.ObserveArchiveDrop,
		})
		defer rec.Close()
		manager.Logs().OnFinish(rec.Record)

		pruner := retention.NewPruner(archiveStore, &retention.Config{
			RetentionDays: cfg.Archive.Retention.Days,
			MaxRecords:    cfg.Archive.Retention.MaxRecords,
			PruneSchedule: cfg.Archive.Retention.PruneSchedule,
		})
		if err := pruner.Start(ctx); err != nil {
			slog.Warn("failed to start archive retention", "error", err)
		} else {
			defer pruner.Stop()
			if next := pruner.NextPruning(); next != nil {
				slog.Debug("archive retention scheduled", "next_pruning", next)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Archive enabled (%s)\n", cfg.Archive.Driver)
	}

	// Control API
	checker := health.New(0)
	checker.RegisterCheck("gateway", health.StateCheck(func() bool {
		st := manager.Status()
		return st.Running || st.LastError == ""
	}, "gateway failed to start"))
	if archiveStore != nil {
		checker.RegisterCheck("archive", health.PingCheck(func(ctx context.Context) error {
			_, err := archiveStore.Count(ctx, &archive.Query{})
			return err
		}))
	}

	apiOpts := control.Options{
		Token:   cfg.Control.Token,
		CORS:    cfg.Control.CORS,
		Archive: archiveStore,
		Health:  checker,
		Version: health.NewVersionInfo(Version, GitCommit, BuildDate),
	}
	if collector != nil {
		apiOpts.Metrics = collector.Handler()
	}
	api := control.New(manager, store, apiOpts)

	srv := server.New(api.Handler(), server.Options{Name: "control"})
	if err := srv.Listen(cfg.Control.ListenAddress); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("control API: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("control API shutdown failed", "error", err)
		}
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Control API listening on %s\n", cfg.Control.ListenAddress)

	// Gateway
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.DrainTimeout+cfg.Control.ShutdownTimeout)
		defer cancel()
		if err := manager.Stop(shutdownCtx); err != nil {
			slog.Error("gateway shutdown failed", "error", err)
		}
	}()
	if cfg.Settings.Autostart && saved != nil {
		if err := manager.Start(ctx, saved); err != nil {
			// The control API stays up so the shell can fix the settings.
			slog.Error("autostart failed", "error", err)
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ Gateway autostart failed: %v\n", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Gateway listening on port %d\n", saved.ListenPort)
		}
	}

	if cfg.Settings.Watch {
		watcher := settings.NewWatcher(store, manager, 0)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("settings watcher failed", "error", err)
			}
		}()
		defer watcher.Stop()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nPress Ctrl+C to stop")
	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "\nShutting down gracefully...")
	return nil
}
