package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/config"
	"github.com/stackbound/devserve/internal/health"
	"github.com/stackbound/devserve/internal/proc"
)

// ServerOptions holds the flags shared by the lms, studio and devstack
// tasks.
type ServerOptions struct {
	Settings      string
	AssetSettings string
	Port          int
	Fast          bool
	Optimized     bool
	NoContracts   bool
}

// resolve applies the defaulting rules: settings fall back to the
// configured default, asset settings fall back to settings, the optimized
// pair overrides both, and fast skips asset generation entirely. Static
// collection only happens when assets are built against settings other
// than the server's own.
func (opts ServerOptions) resolve(cfg *config.Config) (settings, assetSettings string, collectStatic bool) {
	settings = opts.Settings
	if settings == "" {
		settings = cfg.Settings.Default
	}
	assetSettings = opts.AssetSettings
	if assetSettings == "" {
		assetSettings = settings
	}
	if opts.Optimized {
		settings = cfg.Settings.Optimized
		assetSettings = cfg.Settings.OptimizedAssets
	}

	collectStatic = !opts.Fast && assetSettings != settings
	if opts.Fast {
		assetSettings = ""
	}
	return settings, assetSettings, collectStatic
}

// RunServer starts the dev server for one system in the foreground,
// building assets first unless that was skipped. Non-fast runs keep the
// asset watcher alive next to the server, so edits rebuild while it is up.
func RunServer(ctx context.Context, env *Env, system command.System, opts ServerOptions) error {
	if err := config.ValidateSystem(string(system)); err != nil {
		return err
	}

	settings, assetSettings, collectStatic := opts.resolve(env.Config)
	if err := config.ValidateSettingsName(settings); err != nil {
		return err
	}

	if assetSettings != "" {
		if err := config.ValidateSettingsName(assetSettings); err != nil {
			return err
		}
		if err := updateAssets(ctx, env, []command.System{system}, assetSettings, !collectStatic); err != nil {
			return err
		}
	}

	port := opts.Port
	if port == 0 {
		port = env.Config.Port(string(system))
	}

	stopProbes, err := env.startHealthProbes([]health.Target{env.healthTarget(system)})
	if err != nil {
		return err
	}
	defer stopProbes()

	env.Auditor.Emit(auditlog.EventServerStarted, auditlog.Fields{
		"system":   string(system),
		"settings": settings,
		"port":     port,
	})

	cmd := env.Builder.Runserver(system, settings, port, !opts.NoContracts)
	if assetSettings == "" {
		return env.Launcher.Run(ctx, cmd)
	}

	sup := &proc.Supervisor{Launcher: env.Launcher, Logger: env.Logger}
	return sup.RunAll(ctx, []command.Command{
		cmd,
		env.Builder.WatchAssets([]command.System{system}, assetSettings),
	})
}

// updateAssets runs the one-shot asset build and audits the result.
func updateAssets(ctx context.Context, env *Env, systems []command.System, settings string, skipCollect bool) error {
	started := time.Now()
	cmd := env.Builder.UpdateAssets(systems, settings, skipCollect)
	if err := env.Launcher.Run(ctx, cmd); err != nil {
		return fmt.Errorf("asset build failed: %w", err)
	}

	names := make([]string, len(systems))
	for i, s := range systems {
		names[i] = string(s)
	}
	env.Auditor.Emit(auditlog.EventAssetsCollected, auditlog.Fields{
		"systems":     joinNames(names),
		"settings":    settings,
		"collected":   !skipCollect,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
