package proc

import (
	"context"
	"sync"

	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/observability"
)

// Supervisor runs a set of commands concurrently and ties their fates
// together: the first one to exit, for any reason, brings the rest down.
type Supervisor struct {
	Launcher Launcher
	Logger   *observability.Logger
}

// RunAll launches every command and blocks until all have exited. The
// returned error is the first process failure observed; a run torn down by
// context cancellation (Ctrl-C) is a normal shutdown and returns nil.
func (s *Supervisor) RunAll(ctx context.Context, cmds []command.Command) error {
	if len(cmds) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, cmd := range cmds {
		wg.Add(1)
		go func(cmd command.Command) {
			defer wg.Done()
			err := s.Launcher.Run(runCtx, cmd)

			mu.Lock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()

			if err != nil {
				s.Logger.Error("Supervised process failed", map[string]interface{}{
					"command": cmd.String(),
					"error":   err.Error(),
				})
			} else {
				s.Logger.Info("Supervised process exited", map[string]interface{}{
					"command": cmd.String(),
				})
			}

			// One down, all down.
			cancel()
		}(cmd)
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return firstErr
}
