package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/config"
	"github.com/stackbound/devserve/internal/health"
	"github.com/stackbound/devserve/internal/proc"
)

// RunAllOptions holds the flags of the run-all task. The per-system
// overrides win over the shared values when provided.
type RunAllOptions struct {
	Settings       string
	AssetSettings  string
	WorkerSettings string
	Fast           bool
	Optimized      bool
	NoContracts    bool

	SettingsLMS      string
	SettingsCMS      string
	AssetSettingsLMS string
	AssetSettingsCMS string
}

type runAllPlan struct {
	settingsLMS      string
	settingsCMS      string
	assetSettings    string
	assetSettingsLMS string
	assetSettingsCMS string
	workerSettings   string
	collectStatic    bool
	fast             bool
	contracts        bool
}

func (opts RunAllOptions) resolve(cfg *config.Config) runAllPlan {
	settings := opts.Settings
	if settings == "" {
		settings = cfg.Settings.Default
	}
	assetSettings := opts.AssetSettings
	if assetSettings == "" {
		assetSettings = settings
	}
	workerSettings := opts.WorkerSettings
	if workerSettings == "" {
		workerSettings = cfg.Settings.Worker
	}
	if opts.Optimized {
		settings = cfg.Settings.Optimized
		assetSettings = cfg.Settings.OptimizedAssets
	}

	plan := runAllPlan{
		settingsLMS:      settings,
		settingsCMS:      settings,
		assetSettings:    assetSettings,
		assetSettingsLMS: assetSettings,
		assetSettingsCMS: assetSettings,
		workerSettings:   workerSettings,
		collectStatic:    !opts.Fast && assetSettings != settings,
		fast:             opts.Fast,
		contracts:        !opts.NoContracts,
	}
	if opts.SettingsLMS != "" {
		plan.settingsLMS = opts.SettingsLMS
	}
	if opts.SettingsCMS != "" {
		plan.settingsCMS = opts.SettingsCMS
	}
	if opts.AssetSettingsLMS != "" {
		plan.assetSettingsLMS = opts.AssetSettingsLMS
	}
	if opts.AssetSettingsCMS != "" {
		plan.assetSettingsCMS = opts.AssetSettingsCMS
	}
	return plan
}

func (p runAllPlan) validate() error {
	for _, name := range []string{
		p.settingsLMS, p.settingsCMS, p.assetSettings,
		p.assetSettingsLMS, p.assetSettingsCMS, p.workerSettings,
	} {
		if err := config.ValidateSettingsName(name); err != nil {
			return err
		}
	}
	return nil
}

// RunAll builds assets, then supervises the LMS server, the Studio server
// and the background worker as one unit: when any of them exits, the rest
// are brought down. Only one supervised run may be active per state dir.
func RunAll(ctx context.Context, env *Env, opts RunAllOptions) error {
	plan := opts.resolve(env.Config)
	if err := plan.validate(); err != nil {
		return err
	}

	lock := &proc.RunLock{
		Path:    filepath.Join(env.Config.Runner.StateDir, "run.lock"),
		Auditor: env.Auditor,
	}
	held, err := lock.Acquire()
	if err != nil {
		return err
	}
	defer held.Release()

	systems := []command.System{command.LMS, command.Studio}

	if !plan.fast {
		if err := updateAssets(ctx, env, systems, plan.assetSettings, true); err != nil {
			return err
		}
		if plan.collectStatic {
			if err := collectStatic(ctx, env, command.LMS, plan.assetSettingsLMS); err != nil {
				return err
			}
			if err := collectStatic(ctx, env, command.Studio, plan.assetSettingsCMS); err != nil {
				return err
			}
		}
	}

	cmds := []command.Command{
		env.Builder.Runserver(command.LMS, plan.settingsLMS,
			env.Config.Port(config.SystemLMS), plan.contracts),
		env.Builder.Runserver(command.Studio, plan.settingsCMS,
			env.Config.Port(config.SystemStudio), plan.contracts),
		env.Builder.Worker(plan.workerSettings),
	}
	if !plan.fast {
		cmds = append(cmds, env.Builder.WatchAssets(systems, plan.assetSettings))
	}

	stopProbes, err := env.startHealthProbes([]health.Target{
		env.healthTarget(command.LMS),
		env.healthTarget(command.Studio),
	})
	if err != nil {
		return err
	}
	defer stopProbes()

	env.Auditor.Emit(auditlog.EventServerStarted, auditlog.Fields{
		"system":   "all",
		"settings": plan.settingsLMS,
		"worker":   plan.workerSettings,
	})

	sup := &proc.Supervisor{Launcher: env.Launcher, Logger: env.Logger}
	return sup.RunAll(ctx, cmds)
}

func collectStatic(ctx context.Context, env *Env, system command.System, settings string) error {
	started := time.Now()
	if err := env.Launcher.Run(ctx, env.Builder.CollectStatic(system, settings)); err != nil {
		return fmt.Errorf("collectstatic failed for %s: %w", system, err)
	}
	env.Auditor.Emit(auditlog.EventAssetsCollected, auditlog.Fields{
		"systems":     string(system),
		"settings":    settings,
		"collected":   true,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}
