package toolloop

import (
	"fmt"

	"forgeloop/pkg/deferred"
)

// OutcomeKind categorizes the result of a toolloop execution.
type OutcomeKind int

const (
	// OutcomeSuccess indicates the terminal tool ran and its result was extracted into Value.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeDeferred indicates the turn contained gated calls. Pending lists them in call order;
	// the loop continues through Resume once each has a resolution.
	OutcomeDeferred

	// OutcomeNoToolTwice indicates the model answered without tools twice in a row.
	OutcomeNoToolTwice

	// OutcomeMaxIterations indicates MaxIterations model turns passed without a terminal result.
	OutcomeMaxIterations

	// OutcomeLLMError indicates the model service failed. Err holds the cause.
	OutcomeLLMError

	// OutcomeResolutionError indicates Resume was called with resolutions that do not match the
	// pending calls. The model was not called.
	OutcomeResolutionError

	// OutcomeConfigError indicates an unusable Config.
	OutcomeConfigError
)

// String returns human-readable name for OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "Success"
	case OutcomeDeferred:
		return "Deferred"
	case OutcomeNoToolTwice:
		return "NoToolTwice"
	case OutcomeMaxIterations:
		return "MaxIterations"
	case OutcomeLLMError:
		return "LLMError"
	case OutcomeResolutionError:
		return "ResolutionError"
	case OutcomeConfigError:
		return "ConfigError"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", k)
	}
}

// Outcome is the result of Run or Resume.
//
//nolint:govet // Field order optimized for readability over memory alignment
type Outcome[T any] struct {
	Kind OutcomeKind

	// Signal is the terminal tool name on success.
	Signal string

	// Value is the extracted terminal result. Zero unless Kind == OutcomeSuccess.
	Value T

	// Pending holds the gated calls awaiting resolution when Kind == OutcomeDeferred.
	Pending []deferred.PendingCall

	// Err is non-nil for every kind except OutcomeSuccess and OutcomeDeferred.
	Err error

	// Iteration is the 1-indexed model turn at which the outcome occurred.
	Iteration int
}

// Deferred reports whether the loop paused on gated calls.
func (o *Outcome[T]) Deferred() bool {
	return o.Kind == OutcomeDeferred
}
