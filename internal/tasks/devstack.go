package tasks

import (
	"context"

	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/config"
)

// Devstack starts the devstack server for a positional system argument.
// It is the same operation as RunServer; only the option surface differs.
func Devstack(ctx context.Context, env *Env, system string, opts ServerOptions) error {
	if err := config.ValidateSystem(system); err != nil {
		return err
	}
	return RunServer(ctx, env, command.System(system), opts)
}
