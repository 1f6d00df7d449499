// Package agent builds the forgeloop agents and the model clients they talk to.
//
// An Agent pairs one conversation with a tool set and a terminal tool. Run and Resume either
// produce the terminal value or stop with the gated calls that need a decision first; the
// approval package drives that cycle.
//
// Provider adapters live under internal/llmimpl and are only reachable through the factory,
// which wraps them in the middleware chain from middleware/.
package agent
