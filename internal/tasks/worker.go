package tasks

import (
	"context"

	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/config"
)

// Worker runs the background task worker (with its beat scheduler) in the
// foreground.
func Worker(ctx context.Context, env *Env, settings string) error {
	if settings == "" {
		settings = env.Config.Settings.Worker
	}
	if err := config.ValidateSettingsName(settings); err != nil {
		return err
	}

	env.Auditor.Emit(auditlog.EventWorkerStarted, auditlog.Fields{
		"settings": settings,
	})

	return env.Launcher.Run(ctx, env.Builder.Worker(settings))
}
