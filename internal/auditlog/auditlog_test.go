package auditlog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
)

type memorySink struct {
	mu    sync.Mutex
	lines []string
}

func (s *memorySink) Info(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, msg)
}

func (s *memorySink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name   string
		event  string
		fields Fields
		want   string
	}{
		{
			name:   "empty fields",
			event:  "payment_received",
			fields: Fields{},
			want:   "payment_received: ",
		},
		{
			name:   "nil fields",
			event:  "payment_received",
			fields: nil,
			want:   "payment_received: ",
		},
		{
			name:   "mixed types sorted by key",
			event:  "order_created",
			fields: Fields{"order_id": 42, "amount": "10.00"},
			want:   `order_created: amount="10.00", order_id="42"`,
		},
		{
			name:   "three keys",
			event:  "x",
			fields: Fields{"b": 1, "a": 2, "c": 3},
			want:   `x: a="2", b="1", c="3"`,
		},
		{
			name:   "embedded quote is not escaped",
			event:  "note_added",
			fields: Fields{"text": `say "hi"`},
			want:   `note_added: text="say "hi""`,
		},
		{
			name:   "single field",
			event:  "user_disabled",
			fields: Fields{"user_id": "u-17"},
			want:   `user_disabled: user_id="u-17"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(tt.event, tt.fields)
			if got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDeterministic(t *testing.T) {
	fields := Fields{
		"zeta":  1,
		"alpha": "two",
		"mid":   3.5,
		"flag":  true,
	}

	first := Format("event", fields)
	for i := 0; i < 50; i++ {
		// Rebuild the map each round so Go's randomized iteration order
		// gets a chance to bite.
		rebuilt := Fields{}
		for k, v := range fields {
			rebuilt[k] = v
		}
		if got := Format("event", rebuilt); got != first {
			t.Fatalf("iteration %d: Format() = %q, want %q", i, got, first)
		}
	}
}

func TestFormatKeysAscending(t *testing.T) {
	fields := Fields{}
	for i := 0; i < 20; i++ {
		fields[fmt.Sprintf("k%02d", 19-i)] = i
	}

	line := Format("ordered", fields)
	payload := strings.TrimPrefix(line, "ordered: ")

	var keys []string
	for _, pair := range strings.Split(payload, ", ") {
		keys = append(keys, pair[:strings.Index(pair, "=")])
	}
	if !sort.StringsAreSorted(keys) {
		t.Fatalf("keys not in ascending order: %v", keys)
	}
}

func TestRenderValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{true, "true"},
		{false, "false"},
		{42, "42"},
		{int64(-7), "-7"},
		{uint8(255), "255"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{3.5, "3.5"},
		{float32(0.25), "0.25"},
		{10.0, "10"},
		{fmt.Errorf("dial refused"), "dial refused"},
	}

	for _, tt := range tests {
		if got := RenderValue(tt.in); got != tt.want {
			t.Errorf("RenderValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAuditorEmitsSingleLine(t *testing.T) {
	sink := &memorySink{}
	auditor := New(sink)

	auditor.Emit(EventMigrationsApplied, Fields{"system": "lms", "settings": "devstack"})

	lines := sink.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	want := `migrations_applied: settings="devstack", system="lms"`
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

type countingCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingCounter) Inc(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[event]++
}

func TestAuditorWithMetrics(t *testing.T) {
	sink := &memorySink{}
	counter := &countingCounter{}
	auditor := New(sink).WithMetrics(counter)

	auditor.Emit(EventProcessStarted, nil)
	auditor.Emit(EventProcessStarted, nil)
	auditor.Emit(EventProcessExited, Fields{"code": 0})

	if got := counter.counts[string(EventProcessStarted)]; got != 2 {
		t.Errorf("process_started count = %d, want 2", got)
	}
	if got := counter.counts[string(EventProcessExited)]; got != 1 {
		t.Errorf("process_exited count = %d, want 1", got)
	}
}

func TestAuditorConcurrentCallers(t *testing.T) {
	sink := &memorySink{}
	auditor := New(sink)

	lineRe := regexp.MustCompile(`^worker_event: caller="\d+", seq="\d+"$`)

	var wg sync.WaitGroup
	const callers = 16
	const perCaller = 25
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(caller int) {
			defer wg.Done()
			for i := 0; i < perCaller; i++ {
				auditor.Emit("worker_event", Fields{"caller": caller, "seq": i})
			}
		}(c)
	}
	wg.Wait()

	lines := sink.Lines()
	if len(lines) != callers*perCaller {
		t.Fatalf("expected %d lines, got %d", callers*perCaller, len(lines))
	}
	for _, line := range lines {
		if !lineRe.MatchString(line) {
			t.Errorf("malformed line: %q", line)
		}
	}
}
