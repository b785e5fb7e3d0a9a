package proc

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/observability"
)

// Launcher runs one command to completion.
type Launcher interface {
	Run(ctx context.Context, cmd command.Command) error
}

// ExecLauncher runs commands via os/exec with inherited stdio, audit
// events around the process lifecycle, and process metrics.
type ExecLauncher struct {
	logger  *observability.Logger
	auditor *auditlog.Auditor
	metrics *observability.MetricsRegistry

	// Stdout/Stderr default to the parent's; tests inject buffers.
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
	Env    []string

	// Grace is how long a canceled process gets between SIGTERM and a
	// hard kill.
	Grace time.Duration
}

// NewExecLauncher creates a launcher and registers its process metrics.
func NewExecLauncher(logger *observability.Logger, auditor *auditlog.Auditor, metrics *observability.MetricsRegistry, grace time.Duration) *ExecLauncher {
	if grace <= 0 {
		grace = 5 * time.Second
	}

	metrics.NewGauge(
		"devserve_processes_running",
		"Processes currently supervised by the runner.",
		[]string{"program"},
	)
	metrics.NewCounter(
		"devserve_process_exits_total",
		"Supervised process exits, by program and status.",
		[]string{"program", "status"},
	)

	return &ExecLauncher{
		logger:  logger,
		auditor: auditor,
		metrics: metrics,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Grace:   grace,
	}
}

// Run starts the command and waits for it. On context cancellation the
// whole process group receives SIGTERM, then SIGKILL after the grace
// period. The returned error is the process's own failure, if any.
func (l *ExecLauncher) Run(ctx context.Context, cmd command.Command) error {
	c := exec.Command(cmd.Program, cmd.Args...)
	c.Stdout = l.Stdout
	c.Stderr = l.Stderr
	c.Dir = l.Dir
	if l.Env != nil {
		c.Env = l.Env
	}
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	// Own process group, so teardown reaches everything the child spawns
	// (autoreload children, worker forks), not just the child itself.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	started := time.Now()
	if err := c.Start(); err != nil {
		return err
	}

	l.logger.Debug("Process started", map[string]interface{}{
		"command": cmd.String(),
		"pid":     c.Process.Pid,
	})
	l.auditor.Emit(auditlog.EventProcessStarted, auditlog.Fields{
		"command": cmd.String(),
		"pid":     c.Process.Pid,
	})
	gauge := l.metrics.Gauge("devserve_processes_running",
		prometheus.Labels{"program": cmd.Program})
	gauge.Inc()
	defer gauge.Dec()

	waitCh := make(chan error, 1)
	go func() { waitCh <- c.Wait() }()

	var err error
	select {
	case err = <-waitCh:
	case <-ctx.Done():
		_ = syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
		select {
		case err = <-waitCh:
		case <-time.After(l.Grace):
			_ = syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
			err = <-waitCh
		}
	}

	code := 0
	status := "ok"
	if err != nil {
		status = "error"
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	l.auditor.Emit(auditlog.EventProcessExited, auditlog.Fields{
		"command":     cmd.String(),
		"exit_code":   code,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	l.metrics.Counter("devserve_process_exits_total",
		prometheus.Labels{"program": cmd.Program, "status": status}).Inc()

	// A cancel-induced kill is a normal shutdown, not a task failure.
	if ctx.Err() != nil {
		return nil
	}
	return err
}
