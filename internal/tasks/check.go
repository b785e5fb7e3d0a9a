package tasks

import (
	"context"
	"fmt"

	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/config"
)

// CheckSettings verifies that a settings module is importable by piping an
// import statement into the framework shell.
func CheckSettings(ctx context.Context, env *Env, system, settings string) error {
	if err := config.ValidateSystem(system); err != nil {
		return err
	}
	if err := config.ValidateSettingsName(settings); err != nil {
		return err
	}

	cmd := env.Builder.CheckSettings(command.System(system), settings)
	if err := env.Launcher.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to import settings %s for %s: %w", settings, system, err)
	}
	return nil
}
