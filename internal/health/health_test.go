package health

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"
)

func TestTCPCheckerAgainstListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	checker := &TCPChecker{Dialer: NetDialer{}}

	if err := checker.Check(port, time.Second); err != nil {
		t.Errorf("Check(%d) error = %v", port, err)
	}
}

func TestTCPCheckerValidation(t *testing.T) {
	checker := &TCPChecker{Dialer: NetDialer{}}

	if err := checker.Check(0, time.Second); err == nil {
		t.Error("expected error for port 0")
	}
	if err := checker.Check(8000, 0); err == nil {
		t.Error("expected error for zero timeout")
	}
	if err := (&TCPChecker{}).Check(8000, time.Second); err == nil {
		t.Error("expected error for missing dialer")
	}
}

// scriptedChecker returns results from a per-call script, then repeats the
// last entry.
type scriptedChecker struct {
	mu     sync.Mutex
	script []bool
	calls  int
}

func (c *scriptedChecker) Check(port int, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	if c.script[idx] {
		return nil
	}
	return fmt.Errorf("connection refused")
}

type recordingObserver struct {
	mu      sync.Mutex
	changes []StateChange
}

func (o *recordingObserver) OnStateChange(change StateChange) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.changes = append(o.changes, change)
}

func (o *recordingObserver) snapshot() []StateChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]StateChange, len(o.changes))
	copy(out, o.changes)
	return out
}

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

func TestSchedulerFailAndRecover(t *testing.T) {
	checker := &scriptedChecker{script: []bool{true, false, false, false, true, true}}
	observer := &recordingObserver{}

	sched := NewScheduler(checker, observer)
	tick := &manualTicker{ch: make(chan time.Time)}
	sched.SetTickerFactory(func(time.Duration) Ticker { return tick })

	err := sched.Start([]Target{{
		Name:         "lms",
		Port:         8000,
		Interval:     time.Second,
		Timeout:      100 * time.Millisecond,
		FailAfter:    3,
		RecoverAfter: 2,
	}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < len(checker.script); i++ {
		tick.ch <- time.Now()
	}
	sched.Stop()

	changes := observer.snapshot()
	want := []StateChange{
		{Name: "lms", Old: StateUnknown, New: StateHealthy},
		{Name: "lms", Old: StateHealthy, New: StateUnhealthy},
		{Name: "lms", Old: StateUnhealthy, New: StateHealthy},
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d state changes %v, want %d", len(changes), changes, len(want))
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, changes[i], want[i])
		}
	}
}

func TestSchedulerUnknownStateNeedsFailAfter(t *testing.T) {
	checker := &scriptedChecker{script: []bool{false, false, false}}
	observer := &recordingObserver{}

	sched := NewScheduler(checker, observer)
	tick := &manualTicker{ch: make(chan time.Time)}
	sched.SetTickerFactory(func(time.Duration) Ticker { return tick })

	err := sched.Start([]Target{{
		Name:         "studio",
		Port:         8001,
		Interval:     time.Second,
		Timeout:      100 * time.Millisecond,
		FailAfter:    3,
		RecoverAfter: 2,
	}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tick.ch <- time.Now()
	tick.ch <- time.Now()
	if got := observer.snapshot(); len(got) != 0 {
		t.Errorf("state changed before fail_after reached: %v", got)
	}

	tick.ch <- time.Now()
	sched.Stop()

	changes := observer.snapshot()
	if len(changes) != 1 || changes[0].New != StateUnhealthy {
		t.Errorf("expected one transition to UNHEALTHY, got %v", changes)
	}
}

func TestSchedulerValidation(t *testing.T) {
	sched := NewScheduler(&scriptedChecker{script: []bool{true}}, nil)

	tests := []Target{
		{Name: "", Port: 8000, Interval: time.Second, Timeout: time.Second, FailAfter: 1, RecoverAfter: 1},
		{Name: "lms", Port: 0, Interval: time.Second, Timeout: time.Second, FailAfter: 1, RecoverAfter: 1},
		{Name: "lms", Port: 8000, Interval: 0, Timeout: time.Second, FailAfter: 1, RecoverAfter: 1},
		{Name: "lms", Port: 8000, Interval: time.Second, Timeout: 0, FailAfter: 1, RecoverAfter: 1},
		{Name: "lms", Port: 8000, Interval: time.Second, Timeout: time.Second, FailAfter: 0, RecoverAfter: 1},
		{Name: "lms", Port: 8000, Interval: time.Second, Timeout: time.Second, FailAfter: 1, RecoverAfter: 0},
	}
	for i, target := range tests {
		if err := sched.Start([]Target{target}); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}

	ok := Target{Name: "lms", Port: 8000, Interval: time.Second, Timeout: time.Second, FailAfter: 1, RecoverAfter: 1}
	if err := sched.Start([]Target{ok}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sched.Start([]Target{ok}); err == nil {
		t.Error("expected duplicate target error")
	}
	sched.Stop()
}
