// Package metrics provides the Prometheus recorder for forgeloop.
//
// One Recorder instance satisfies every observer seam in the module: model-service middleware,
// tool-loop dispatch, command-session timeouts and the approval loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	llmmetrics "forgeloop/pkg/agent/middleware/metrics"
)

const namespace = "forgeloop"

// PrometheusRecorder records forgeloop metrics into its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	queueWaitTime   *prometheus.HistogramVec

	toolCallsTotal   *prometheus.CounterVec
	commandTimeouts  prometheus.Counter
	approvalRounds   prometheus.Counter
	resolutionsTotal *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder with a fresh registry that also carries the Go and
// process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of model requests by model and status",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Total number of tokens used in model requests",
			},
			[]string{"model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of model requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		throttleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_throttle_total",
				Help:      "Total number of rate limiting events",
			},
			[]string{"model", "reason"},
		),
		queueWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_queue_wait_duration_seconds",
				Help:      "Time spent waiting for rate limit availability",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool calls dispatched by the tool loop by outcome",
			},
			[]string{"tool", "outcome"},
		),
		commandTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_timeouts_total",
				Help:      "Shell commands that hit their timeout",
			},
		),
		approvalRounds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approval_rounds_total",
				Help:      "Times an agent was resumed with a full set of resolutions",
			},
		),
		resolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Resolutions of pending calls by tool and verdict",
			},
			[]string{"tool", "verdict"},
		),
	}
}

// Registry returns the registry the recorder writes to.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveRequest records metrics for a completed model request.
func (p *PrometheusRecorder) ObserveRequest(model, status, errorType string, inputTokens, outputTokens int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(model, status, errorType).Inc()

	// Tokens only count on success.
	if status == llmmetrics.StatusSuccess {
		p.tokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
		p.tokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}

	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncThrottle increments the throttle counter for rate limiting events.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// ObserveQueueWait records time spent waiting for rate limit availability.
func (p *PrometheusRecorder) ObserveQueueWait(model string, duration time.Duration) {
	p.queueWaitTime.WithLabelValues(model).Observe(duration.Seconds())
}

// ToolCall counts one dispatched tool call.
func (p *PrometheusRecorder) ToolCall(tool, outcome string) {
	p.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// IncCommandTimeout counts one timed-out shell command.
func (p *PrometheusRecorder) IncCommandTimeout() {
	p.commandTimeouts.Inc()
}

// IncApprovalRound counts one resume after a full set of resolutions.
func (p *PrometheusRecorder) IncApprovalRound() {
	p.approvalRounds.Inc()
}

// IncResolution counts one resolution.
func (p *PrometheusRecorder) IncResolution(tool, verdict string) {
	p.resolutionsTotal.WithLabelValues(tool, verdict).Inc()
}
