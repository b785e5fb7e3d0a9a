package proc

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stackbound/devserve/internal/auditlog"
	"github.com/stackbound/devserve/internal/command"
	"github.com/stackbound/devserve/internal/observability"
)

func newTestLauncher(t *testing.T) (*ExecLauncher, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel)
	logger.SetConsoleOutput(&buf)
	auditor := observability.NewAuditor(logger)
	metrics := observability.NewMetricsRegistry()
	l := NewExecLauncher(logger, auditor, metrics, time.Second)
	l.Stdout = &buf
	l.Stderr = &buf
	return l, &buf
}

func TestExecLauncherSuccess(t *testing.T) {
	l, buf := newTestLauncher(t)

	err := l.Run(context.Background(), command.Command{Program: "true"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "process_started: ") {
		t.Errorf("missing process_started audit line: %q", out)
	}
	if !strings.Contains(out, `exit_code="0"`) {
		t.Errorf("missing exit_code in audit line: %q", out)
	}
}

func TestExecLauncherFailure(t *testing.T) {
	l, buf := newTestLauncher(t)

	err := l.Run(context.Background(), command.Command{Program: "false"})
	if err == nil {
		t.Fatal("expected error from failing process")
	}
	if !strings.Contains(buf.String(), `exit_code="1"`) {
		t.Errorf("missing exit_code=1 audit field: %q", buf.String())
	}
}

func TestExecLauncherStdin(t *testing.T) {
	l, _ := newTestLauncher(t)

	cmd := command.Command{
		Program: "sh",
		Args:    []string{"-c", `read line && test "$line" = "import lms.envs.devstack"`},
		Stdin:   "import lms.envs.devstack\n",
	}
	if err := l.Run(context.Background(), cmd); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestExecLauncherMissingProgram(t *testing.T) {
	l, _ := newTestLauncher(t)

	err := l.Run(context.Background(), command.Command{Program: "devserve-no-such-program"})
	if err == nil {
		t.Fatal("expected start error")
	}
}

func TestExecLauncherCancelIsCleanShutdown(t *testing.T) {
	l, _ := newTestLauncher(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := l.Run(ctx, command.Command{Program: "sleep", Args: []string{"30"}})
	if err != nil {
		t.Fatalf("canceled run should not report failure, got %v", err)
	}
}

func TestExecLauncherCancelKillsProcessGroup(t *testing.T) {
	l, _ := newTestLauncher(t)

	pidFile := filepath.Join(t.TempDir(), "pid")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, command.Command{
			Program: "sh",
			Args:    []string{"-c", "sleep 30 & echo $! > " + pidFile + "; wait"},
		})
	}()

	// Wait for the shell to report its grandchild's pid.
	var pid int
	deadline := time.Now().Add(5 * time.Second)
	for pid == 0 {
		if time.Now().After(deadline) {
			t.Fatal("grandchild pid file never appeared")
		}
		if data, err := os.ReadFile(pidFile); err == nil {
			pid, _ = strconv.Atoi(strings.TrimSpace(string(data)))
		}
		if pid == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("canceled run should not report failure, got %v", err)
	}

	// The sleep was spawned by the shell, not by us; group termination
	// must still reach it.
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("grandchild %d still alive after cancel", pid)
}

// fakeLauncher blocks until its context is canceled, except for commands
// whose program is "exit", which return immediately.
type fakeLauncher struct {
	mu      sync.Mutex
	started []string
}

func (f *fakeLauncher) Run(ctx context.Context, cmd command.Command) error {
	f.mu.Lock()
	f.started = append(f.started, cmd.Program)
	f.mu.Unlock()

	if cmd.Program == "exit" {
		return nil
	}
	<-ctx.Done()
	return nil
}

func TestSupervisorFirstExitStopsAll(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel)
	logger.SetConsoleOutput(&buf)

	launcher := &fakeLauncher{}
	sup := &Supervisor{Launcher: launcher, Logger: logger}

	cmds := []command.Command{
		{Program: "forever-a"},
		{Program: "exit"},
		{Program: "forever-b"},
	}

	done := make(chan error, 1)
	go func() { done <- sup.RunAll(context.Background(), cmds) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunAll() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunAll did not tear down after first exit")
	}

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	if len(launcher.started) != 3 {
		t.Errorf("started %d commands, want 3", len(launcher.started))
	}
}

func TestSupervisorEmptyCommandList(t *testing.T) {
	sup := &Supervisor{Launcher: &fakeLauncher{}, Logger: observability.NewLogger(observability.ErrorLevel)}
	if err := sup.RunAll(context.Background(), nil); err != nil {
		t.Errorf("RunAll(nil) error = %v", err)
	}
}

type fakeChecker struct{ alive bool }

func (f fakeChecker) Alive(int) bool { return f.alive }

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) Info(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, msg)
}

func TestRunLockAcquireRelease(t *testing.T) {
	sink := &recordingSink{}
	lock := &RunLock{
		Path:    t.TempDir() + "/run.lock",
		Auditor: auditlog.New(sink),
	}

	held, err := lock.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := lock.Acquire(); err == nil {
		t.Fatal("second Acquire should fail while lock is held")
	} else if _, ok := err.(*ErrLockHeld); !ok {
		t.Fatalf("expected *ErrLockHeld, got %T", err)
	}

	if err := held.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := held.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}

	if _, err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire after release error = %v", err)
	}

	var sawAcquired, sawReleased bool
	for _, line := range sink.lines {
		if strings.HasPrefix(line, "run_lock_acquired: ") {
			sawAcquired = true
		}
		if strings.HasPrefix(line, "run_lock_released: ") {
			sawReleased = true
		}
	}
	if !sawAcquired || !sawReleased {
		t.Errorf("missing lock audit events: %v", sink.lines)
	}
}

func TestRunLockRecoversStaleLock(t *testing.T) {
	path := t.TempDir() + "/run.lock"

	dead := &RunLock{Path: path, Checker: fakeChecker{alive: false}}
	if _, err := dead.Acquire(); err != nil {
		t.Fatalf("seed Acquire() error = %v", err)
	}

	// Holder is gone; a checker that reports the pid dead lets a new run
	// reclaim the lock.
	reclaim := &RunLock{Path: path, Checker: fakeChecker{alive: false}}
	if _, err := reclaim.Acquire(); err != nil {
		t.Fatalf("reclaim Acquire() error = %v", err)
	}
}
