package agent

import "errors"

var (
	// ErrNothingPending indicates Resume was called on an agent that is not waiting for decisions.
	ErrNothingPending = errors.New("agent has no pending calls to resume")

	// ErrAgentFinished indicates Run or Resume was called after the terminal tool succeeded.
	ErrAgentFinished = errors.New("agent already produced its result")

	// ErrUnsupportedProvider indicates a model provider the factory cannot build.
	ErrUnsupportedProvider = errors.New("unsupported model provider")
)
