// Package tasks implements the runner's user-facing operations: start a
// dev server, run the worker, sync the database, check settings. Each task
// resolves its option defaults, builds commands, and delegates the actual
// launching to the proc package.
package tasks

import (
	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/config"
	"github.com/stackbound/devserve/internal/health"
	"github.com/stackbound/devserve/internal/observability"
	"github.com/stackbound/devserve/internal/proc"
)

// Env bundles the collaborators every task needs.
type Env struct {
	Config   *config.Config
	Logger   *observability.Logger
	Auditor  *auditlog.Auditor
	Builder  command.Builder
	Launcher proc.Launcher

	// NewChecker is overridable for tests; nil means real TCP probing.
	NewChecker func() health.Checker
}

// NewEnv wires an Env from configuration and an already-built
// observability stack.
func NewEnv(cfg *config.Config, logger *observability.Logger, auditor *auditlog.Auditor, launcher proc.Launcher) *Env {
	return &Env{
		Config:  cfg,
		Logger:  logger,
		Auditor: auditor,
		Builder: command.Builder{
			Python:     cfg.Python,
			ManagePath: cfg.ManagePath,
		},
		Launcher: launcher,
	}
}

func (e *Env) checker() health.Checker {
	if e.NewChecker != nil {
		return e.NewChecker()
	}
	return &health.TCPChecker{Dialer: health.NetDialer{}}
}

// healthObserver turns probe transitions into log lines and audit events.
type healthObserver struct {
	logger  *observability.Logger
	auditor *auditlog.Auditor
}

func (o healthObserver) OnStateChange(change health.StateChange) {
	fields := map[string]interface{}{
		"system": change.Name,
		"old":    string(change.Old),
		"new":    string(change.New),
	}
	if change.New == health.StateHealthy {
		o.logger.Info("Server is up", fields)
	} else {
		o.logger.Warn("Server stopped answering", fields)
	}
	o.auditor.Emit(auditlog.EventHealthStateChanged, auditlog.Fields{
		"system": change.Name,
		"old":    string(change.Old),
		"new":    string(change.New),
	})
}

// startHealthProbes starts readiness probing for the given system ports.
// The returned stop function is a no-op when probing is disabled.
func (e *Env) startHealthProbes(targets []health.Target) (stop func(), err error) {
	if !e.Config.Runner.Health.Enabled || len(targets) == 0 {
		return func() {}, nil
	}

	sched := health.NewScheduler(e.checker(), healthObserver{
		logger:  e.Logger,
		auditor: e.Auditor,
	})
	if err := sched.Start(targets); err != nil {
		return nil, err
	}
	return sched.Stop, nil
}

func (e *Env) healthTarget(system command.System) health.Target {
	h := e.Config.Runner.Health
	return health.Target{
		Name:         string(system),
		Port:         e.Config.Port(string(system)),
		Interval:     msToDuration(h.IntervalMS),
		Timeout:      msToDuration(h.TimeoutMS),
		FailAfter:    h.FailAfter,
		RecoverAfter: h.RecoverAfter,
	}
}
