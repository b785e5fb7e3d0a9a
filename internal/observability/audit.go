package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stackbound/devserve/internal/auditlog"
)

// auditSink adapts Logger to auditlog.Sink. The formatter owns the line;
// the logger only decorates it with level and ships it.
type auditSink struct {
	logger *Logger
}

func (s auditSink) Info(msg string) {
	s.logger.Info(msg)
}

// NewAuditor creates an auditor whose lines land on the given logger at
// info level.
func NewAuditor(logger *Logger) *auditlog.Auditor {
	return auditlog.New(auditSink{logger: logger})
}

// auditCounter bridges the audit event counter onto a CounterVec.
type auditCounter struct {
	vec *prometheus.CounterVec
}

func (c auditCounter) Inc(event string) {
	c.vec.With(prometheus.Labels{"event": event}).Inc()
}

// NewMeteredAuditor creates an auditor that also counts emitted events in
// devserve_audit_events_total.
func NewMeteredAuditor(logger *Logger, metrics *MetricsRegistry) *auditlog.Auditor {
	vec := metrics.NewCounter(
		"devserve_audit_events_total",
		"Audit events emitted, by event name.",
		[]string{"event"},
	)
	return NewAuditor(logger).WithMetrics(auditCounter{vec: vec})
}
