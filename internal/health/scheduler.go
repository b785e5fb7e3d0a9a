package health

import (
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateUnknown   State = "UNKNOWN"
	StateHealthy   State = "HEALTHY"
	StateUnhealthy State = "UNHEALTHY"
)

// Target is one spawned server to probe, identified by its system name.
type Target struct {
	Name         string
	Port         int
	Interval     time.Duration
	Timeout      time.Duration
	FailAfter    int
	RecoverAfter int
}

type StateChange struct {
	Name string
	Old  State
	New  State
}

// Observer receives state transitions; callbacks run outside scheduler
// locks.
type Observer interface {
	OnStateChange(change StateChange)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) C() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()               { rt.t.Stop() }

type tickerFactory func(d time.Duration) Ticker

// Scheduler drives periodic probes, one goroutine per target, and applies
// fail-after / recover-after hysteresis before flipping state.
type Scheduler struct {
	checker Checker
	obs     Observer

	mu      sync.Mutex
	probes  map[string]*probe
	tickers tickerFactory
	stopped bool
}

type probe struct {
	target Target

	mu                   sync.Mutex
	state                State
	consecutiveSuccesses int
	consecutiveFailures  int

	stopCh chan struct{}
	doneCh chan struct{}
	ticker Ticker
}

func NewScheduler(checker Checker, observer Observer) *Scheduler {
	return &Scheduler{
		checker: checker,
		obs:     observer,
		probes:  make(map[string]*probe),
		tickers: func(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} },
	}
}

func (s *Scheduler) SetTickerFactory(factory func(d time.Duration) Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickers = factory
}

func (s *Scheduler) Start(targets []Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler stopped")
	}
	if s.checker == nil {
		return fmt.Errorf("missing checker")
	}
	for _, t := range targets {
		if err := validateTarget(t); err != nil {
			return err
		}
		if _, exists := s.probes[t.Name]; exists {
			return fmt.Errorf("duplicate target: %s", t.Name)
		}

		p := &probe{
			target: t,
			state:  StateUnknown,
			stopCh: make(chan struct{}),
			doneCh: make(chan struct{}),
		}
		p.ticker = s.tickers(t.Interval)
		s.probes[t.Name] = p
		go s.run(p)
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	probes := make([]*probe, 0, len(s.probes))
	for _, p := range s.probes {
		probes = append(probes, p)
	}
	s.mu.Unlock()

	for _, p := range probes {
		close(p.stopCh)
		if p.ticker != nil {
			p.ticker.Stop()
		}
		<-p.doneCh
	}
}

func validateTarget(t Target) error {
	if t.Name == "" {
		return fmt.Errorf("missing target name")
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("invalid probe port: %d", t.Port)
	}
	if t.Interval <= 0 {
		return fmt.Errorf("invalid interval: %s", t.Interval)
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("invalid timeout: %s", t.Timeout)
	}
	if t.FailAfter < 1 {
		return fmt.Errorf("invalid fail_after: %d", t.FailAfter)
	}
	if t.RecoverAfter < 1 {
		return fmt.Errorf("invalid recover_after: %d", t.RecoverAfter)
	}
	return nil
}

func (s *Scheduler) run(p *probe) {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C():
			s.tick(p)
		}
	}
}

func (s *Scheduler) tick(p *probe) {
	// Probe without holding any lock (I/O operation)
	err := s.checker.Check(p.target.Port, p.target.Timeout)
	success := err == nil

	p.mu.Lock()
	oldState := p.state

	if success {
		p.consecutiveSuccesses++
		p.consecutiveFailures = 0
		switch p.state {
		case StateUnknown:
			p.state = StateHealthy
		case StateUnhealthy:
			if p.consecutiveSuccesses >= p.target.RecoverAfter {
				p.state = StateHealthy
			}
		}
	} else {
		p.consecutiveFailures++
		p.consecutiveSuccesses = 0
		switch p.state {
		case StateUnknown:
			// A server that has not come up yet is not news; wait for
			// fail_after before declaring it down.
			if p.consecutiveFailures >= p.target.FailAfter {
				p.state = StateUnhealthy
			}
		case StateHealthy:
			if p.consecutiveFailures >= p.target.FailAfter {
				p.state = StateUnhealthy
			}
		}
	}

	stateChanged := oldState != p.state
	newState := p.state
	p.mu.Unlock()

	if stateChanged && s.obs != nil {
		s.obs.OnStateChange(StateChange{Name: p.target.Name, Old: oldState, New: newState})
	}
}
