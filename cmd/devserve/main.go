package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/config"
	"github.com/stackbound/devserve/internal/observability"
	"github.com/stackbound/devserve/internal/proc"
	"github.com/stackbound/devserve/internal/tasks"
)

var version = "dev"

// app holds the wired collaborators shared by all subcommands. It is built
// once in the root PersistentPreRunE, after flags are parsed.
type app struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.MetricsRegistry
	env     *tasks.Env
}

func (a *app) setup(configPath string, verbose bool) error {
	// A .env next to the working directory is a convenience, not a
	// requirement.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := observability.ParseLogLevel(cfg.Observability.Logging.Console.Level)
	if err != nil {
		return err
	}
	if verbose {
		level = observability.DebugLevel
	}

	logger := observability.NewLogger(level)
	if g := cfg.Observability.Logging.GELF; g.Enabled {
		if err := logger.InitGELF(g.Host, g.Port, g.Protocol, g.Facility); err != nil {
			return err
		}
		logger.SetBaseFields(map[string]interface{}{
			"tool":        "devserve",
			"version":     version,
			"config_hash": config.Hash(cfg),
		})
	}

	metrics := observability.NewMetricsRegistry()
	auditor := observability.NewMeteredAuditor(logger, metrics)

	launcher := proc.NewExecLauncher(logger, auditor, metrics,
		time.Duration(cfg.Runner.ShutdownGraceMS)*time.Millisecond)

	auditor.Emit(auditlog.EventConfigLoaded, auditlog.Fields{
		"path": configPath,
		"hash": config.Hash(cfg),
	})

	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics
	a.env = tasks.NewEnv(cfg, logger, auditor, launcher)
	return nil
}

// startMetricsExporters starts the Prometheus endpoint and the InfluxDB
// pusher when configured. Only long-running commands call this.
func (a *app) startMetricsExporters(ctx context.Context) (stop func(), err error) {
	var stops []func()

	if pc := a.cfg.Observability.Metrics.Prometheus; pc.Enabled {
		server, err := observability.NewPrometheusServer(observability.PrometheusConfig{
			Port: pc.Port,
			Path: pc.Path,
			Bind: pc.Bind,
		}, a.metrics, a.logger)
		if err != nil {
			return nil, err
		}
		promCtx, cancel := context.WithCancel(ctx)
		go func() { _ = server.Start(promCtx) }()
		stops = append(stops, cancel)
		a.logger.Info("Prometheus metrics enabled", map[string]interface{}{
			"url": server.URL(),
		})
	}

	if ic := a.cfg.Observability.Metrics.InfluxDB; ic.Enabled {
		pusher, err := observability.NewInfluxPusher(observability.InfluxConfig{
			URL:      ic.URL,
			Token:    ic.Token,
			Org:      ic.Org,
			Bucket:   ic.Bucket,
			Interval: time.Duration(ic.PushIntervalSeconds) * time.Second,
		}, a.metrics, a.logger)
		if err != nil {
			return nil, err
		}
		go pusher.Start(ctx)
		stops = append(stops, pusher.Stop)
	}

	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}

func main() {
	var (
		configPath string
		verbose    bool
	)
	a := &app{}

	root := &cobra.Command{
		Use:           "devserve",
		Short:         "Development server runner for the lms and studio systems",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			return a.setup(configPath, verbose)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "devserve.yaml", "Path to the configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	var serverOpts tasks.ServerOptions
	addServerFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&serverOpts.Settings, "settings", "", "Settings module for the server")
		cmd.Flags().StringVar(&serverOpts.AssetSettings, "asset-settings", "", "Settings module for asset generation")
		cmd.Flags().IntVar(&serverOpts.Port, "port", 0, "Port override")
		cmd.Flags().BoolVar(&serverOpts.Fast, "fast", false, "Skip asset generation")
		cmd.Flags().BoolVar(&serverOpts.Optimized, "optimized", false, "Use the optimized settings pair")
		cmd.Flags().BoolVar(&serverOpts.NoContracts, "no-contracts", false, "Disable contract enforcement")
	}

	lmsCmd := &cobra.Command{
		Use:   "lms",
		Short: "Run the lms dev server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := proc.ContextWithSignals(cmd.Context(), a.logger)
			defer stop()
			return tasks.Devstack(ctx, a.env, config.SystemLMS, serverOpts)
		},
	}
	addServerFlags(lmsCmd)

	studioCmd := &cobra.Command{
		Use:   "studio",
		Short: "Run the studio dev server in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := proc.ContextWithSignals(cmd.Context(), a.logger)
			defer stop()
			return tasks.Devstack(ctx, a.env, config.SystemStudio, serverOpts)
		},
	}
	addServerFlags(studioCmd)

	devstackCmd := &cobra.Command{
		Use:   "devstack <system>",
		Short: "Run the dev server for the given system (lms or studio)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := proc.ContextWithSignals(cmd.Context(), a.logger)
			defer stop()
			return tasks.Devstack(ctx, a.env, args[0], serverOpts)
		},
	}
	addServerFlags(devstackCmd)

	var workerSettings string
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background task worker in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := proc.ContextWithSignals(cmd.Context(), a.logger)
			defer stop()
			return tasks.Worker(ctx, a.env, workerSettings)
		},
	}
	workerCmd.Flags().StringVar(&workerSettings, "settings", "", "Settings module for the worker")

	var runAllOpts tasks.RunAllOptions
	runAllCmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run both dev servers and the worker under one supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := proc.ContextWithSignals(cmd.Context(), a.logger)
			defer stop()

			stopExporters, err := a.startMetricsExporters(ctx)
			if err != nil {
				return err
			}
			defer stopExporters()

			return tasks.RunAll(ctx, a.env, runAllOpts)
		},
	}
	runAllCmd.Flags().StringVar(&runAllOpts.Settings, "settings", "", "Settings module for both servers")
	runAllCmd.Flags().StringVar(&runAllOpts.AssetSettings, "asset-settings", "", "Settings module for asset generation")
	runAllCmd.Flags().StringVar(&runAllOpts.WorkerSettings, "worker-settings", "", "Settings module for the worker")
	runAllCmd.Flags().BoolVar(&runAllOpts.Fast, "fast", false, "Skip asset generation and watching")
	runAllCmd.Flags().BoolVar(&runAllOpts.Optimized, "optimized", false, "Use the optimized settings pair")
	runAllCmd.Flags().BoolVar(&runAllOpts.NoContracts, "no-contracts", false, "Disable contract enforcement")
	runAllCmd.Flags().StringVar(&runAllOpts.SettingsLMS, "settings-lms", "", "Settings override for the lms server")
	runAllCmd.Flags().StringVar(&runAllOpts.SettingsCMS, "settings-cms", "", "Settings override for the studio server")
	runAllCmd.Flags().StringVar(&runAllOpts.AssetSettingsLMS, "asset-settings-lms", "", "Asset settings override for lms")
	runAllCmd.Flags().StringVar(&runAllOpts.AssetSettingsCMS, "asset-settings-cms", "", "Asset settings override for studio")

	var dbSettings string
	updateDBCmd := &cobra.Command{
		Use:   "update-db",
		Short: "Sync and migrate the database for both systems",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := proc.ContextWithSignals(cmd.Context(), a.logger)
			defer stop()
			return tasks.UpdateDB(ctx, a.env, dbSettings)
		},
	}
	updateDBCmd.Flags().StringVar(&dbSettings, "settings", "", "Settings module for migrations")

	checkSettingsCmd := &cobra.Command{
		Use:   "check-settings <system> <settings>",
		Short: "Verify that a settings module is importable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := proc.ContextWithSignals(cmd.Context(), a.logger)
			defer stop()
			if err := tasks.CheckSettings(ctx, a.env, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Settings %s for %s import cleanly\n", args[1], args[0])
			return nil
		},
	}

	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the local environment before running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			results := tasks.NewDoctor(a.cfg).RunChecks()
			failed := 0
			for _, r := range results {
				mark := "PASS"
				if !r.Passed {
					mark = "FAIL"
					failed++
				}
				fmt.Printf("[%s] %-20s %s\n", mark, r.Name, r.Message)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(configPath); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", configPath)
			return nil
		},
	}

	root.AddCommand(lmsCmd, studioCmd, devstackCmd, workerCmd, runAllCmd,
		updateDBCmd, checkSettingsCmd, doctorCmd, initCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(1)
	}
}
