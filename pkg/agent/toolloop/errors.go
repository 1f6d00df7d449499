package toolloop

import "errors"

var (
	// ErrNoTerminalTool indicates the model stopped calling tools without calling its terminal tool.
	ErrNoTerminalTool = errors.New("no terminal tool was called")

	// ErrInvalidResult indicates the terminal tool was called but its payload could not be extracted.
	ErrInvalidResult = errors.New("invalid tool result payload")

	// ErrGracefulShutdown indicates the loop was interrupted by context cancellation.
	ErrGracefulShutdown = errors.New("graceful shutdown requested")

	// ErrInvalidConfig indicates a Config missing required fields.
	ErrInvalidConfig = errors.New("invalid toolloop config")
)
