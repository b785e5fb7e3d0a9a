// Package proc launches and supervises the external processes the task
// layer asks for. It owns no command-line knowledge of its own; argv comes
// in fully built.
package proc

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/stackbound/devserve/internal/observability"
)

var notifySignals = signal.Notify
var stopSignals = signal.Stop

// ContextWithSignals returns a derived context that is canceled on
// SIGTERM/SIGINT, and an idempotent stop function.
func ContextWithSignals(parent context.Context, logger *observability.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	notifySignals(sigCh, syscall.SIGTERM, os.Interrupt)

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			stopSignals(sigCh)
			cancel()
		})
	}

	go func() {
		defer stopSignals(sigCh)

		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("Termination signal received", map[string]interface{}{
					"signal": fmt.Sprintf("%v", sig),
				})
			}
			stop()
		}
	}()

	return ctx, stop
}
