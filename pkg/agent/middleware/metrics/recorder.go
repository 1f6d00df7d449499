// Package metrics provides metrics recording for model-service calls.
package metrics

import (
	"time"
)

// Request status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder records model-service metrics. pkg/metrics provides the Prometheus implementation.
type Recorder interface {
	// ObserveRequest records one completed request.
	ObserveRequest(model, status, errorType string, inputTokens, outputTokens int, duration time.Duration)

	// IncThrottle counts a rate-limiting event.
	IncThrottle(model, reason string)

	// ObserveQueueWait records time spent waiting for rate limit availability.
	ObserveQueueWait(model string, duration time.Duration)
}

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

// Nop returns a recorder that discards all metrics.
func Nop() Recorder {
	return NoopRecorder{}
}

// ObserveRequest does nothing.
func (NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ time.Duration) {}

// IncThrottle does nothing.
func (NoopRecorder) IncThrottle(_, _ string) {}

// ObserveQueueWait does nothing.
func (NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {}
