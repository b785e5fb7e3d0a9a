package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/config"
)

// UpdateDB syncs and migrates the database for both systems, lms first.
// The first failure stops the sequence.
func UpdateDB(ctx context.Context, env *Env, settings string) error {
	if settings == "" {
		settings = env.Config.Settings.Default
	}
	if err := config.ValidateSettingsName(settings); err != nil {
		return err
	}

	for _, system := range []command.System{command.LMS, command.Studio} {
		started := time.Now()
		cmd := env.Builder.SyncDB(system, settings)
		if err := env.Launcher.Run(ctx, cmd); err != nil {
			return fmt.Errorf("migrations failed for %s: %w", system.DBAlias(), err)
		}

		env.Auditor.Emit(auditlog.EventMigrationsApplied, auditlog.Fields{
			"system":      system.DBAlias(),
			"settings":    settings,
			"duration_ms": time.Since(started).Milliseconds(),
		})
	}

	return nil
}
