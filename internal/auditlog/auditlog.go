// Package auditlog renders business-significant events as deterministic,
// machine-parseable log lines.
//
// Lines use a verbose key-value syntax so a downstream pipeline can pull
// fields back out with a regex:
//
//	payment_received: amount="10.00", currency="USD", order_id="42"
//
// Keys are sorted, so the same event with the same fields always renders to
// the same bytes no matter how the caller assembled the map. Emit a line
// immediately after the event it records has happened and, if applicable,
// after the database has been updated.
package auditlog

import (
	"sort"
	"strings"
)

// Event is a stable, machine-parseable audit event name.
type Event string

const (
	EventConfigLoaded       Event = "config_loaded"
	EventProcessStarted     Event = "process_started"
	EventProcessExited      Event = "process_exited"
	EventServerStarted      Event = "server_started"
	EventWorkerStarted      Event = "worker_started"
	EventAssetsCollected    Event = "assets_collected"
	EventMigrationsApplied  Event = "migrations_applied"
	EventHealthStateChanged Event = "health_state_changed"
	EventRunLockAcquired    Event = "run_lock_acquired"
	EventRunLockReleased    Event = "run_lock_released"
)

// Fields holds the named attributes of one audit event. Keys are unique by
// construction; insertion order is irrelevant because rendering sorts them.
type Fields map[string]interface{}

// Sink receives fully formatted audit lines at informational severity.
// Handler configuration, timestamps and destinations are the sink's concern.
type Sink interface {
	Info(msg string)
}

// Format renders an event name and its fields as one audit line:
//
//	<name>: <key1>="<value1>", <key2>="<value2>", ...
//
// Keys appear in ascending code-point order. Values are rendered with
// RenderValue and are NOT quote-escaped; this exact shape is a compatibility
// surface for log-parsing tooling, embedded double quotes included. With no
// fields the result degrades to `<name>: `.
func Format(name string, fields Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+`="`+RenderValue(fields[k])+`"`)
	}

	return name + ": " + strings.Join(pairs, ", ")
}

// Auditor formats audit events and hands them to a sink, one line per call.
// It is stateless; concurrent use is safe whenever the sink's Info is.
type Auditor struct {
	sink    Sink
	counter EventCounter
}

// EventCounter observes emitted events, keyed by event name. Optional.
type EventCounter interface {
	Inc(event string)
}

// New creates an Auditor writing to the given sink.
func New(sink Sink) *Auditor {
	return &Auditor{sink: sink}
}

// WithMetrics returns a copy of the auditor that counts emitted events.
func (a *Auditor) WithMetrics(counter EventCounter) *Auditor {
	return &Auditor{sink: a.sink, counter: counter}
}

// Emit writes exactly one info-level line for the event. It performs no
// validation and no I/O beyond the single sink write.
func (a *Auditor) Emit(event Event, fields Fields) {
	a.sink.Info(Format(string(event), fields))
	if a.counter != nil {
		a.counter.Inc(string(event))
	}
}
