package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobCreateOutcome(outcome string)                                        {}
func (n *NoopSink) JobTransition(from, to string)                                          {}
func (n *NoopSink) JobsReaped(count int)                                                   {}
func (n *NoopSink) TriggerTickCompleted(duration time.Duration, dispatched int, err error) {}
func (n *NoopSink) ScheduleRunRecorded()                                                   {}
func (n *NoopSink) DueSchedulesUpdate(count int)                                           {}
func (n *NoopSink) WebhookCompleted(action, statusClass string, d time.Duration)           {}
func (n *NoopSink) WordPressRequestCompleted(statusClass string, d time.Duration)          {}
func (n *NoopSink) CircuitRejected(target string)                                          {}
func (n *NoopSink) HTTPRequestCompleted(route string, status int, d time.Duration)         {}
