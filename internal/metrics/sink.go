package metrics

import (
	"strings"
	"time"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Job metrics
	JobCreateOutcome(outcome string)
	JobTransition(from, to string)
	JobsReaped(count int)

	// Trigger metrics
	TriggerTickCompleted(duration time.Duration, dispatched int, err error)
	ScheduleRunRecorded()
	DueSchedulesUpdate(count int)

	// Outbound calls
	WebhookCompleted(action, statusClass string, duration time.Duration)
	WordPressRequestCompleted(statusClass string, duration time.Duration)
	CircuitRejected(target string)

	// Inbound API
	HTTPRequestCompleted(route string, status int, duration time.Duration)
}

// StatusClass constants for outbound call metrics.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
			return StatusClassTimeout
		case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial"):
			return StatusClassConnectionError
		}
		return StatusClassOtherError
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
