// Package deferred defines the records exchanged when an agent pauses on gated tool calls:
// the pending calls it proposed and the resolutions that unblock them.
package deferred

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIncompleteResolutions is returned when a resume is attempted without a resolution for every pending call.
	ErrIncompleteResolutions = errors.New("incomplete resolutions for pending calls")
	// ErrUnknownResolution is returned when a resolution names a call that is not pending.
	ErrUnknownResolution = errors.New("resolution for unknown call")
	// ErrUndecodableArgs is returned by DecodeArgs when neither payload form can be read.
	ErrUndecodableArgs = errors.New("undecodable tool arguments")
)

// Args is a tool-call argument payload. Providers deliver it either already structured
// (StructuredArgs) or as JSON text (EncodedArgs). DecodeArgs is the only place that
// distinguishes the two.
type Args interface {
	isArgs()
}

// StructuredArgs is a payload that arrived as a decoded mapping.
type StructuredArgs map[string]any

// EncodedArgs is a payload that arrived as JSON text.
type EncodedArgs string

func (StructuredArgs) isArgs() {}
func (EncodedArgs) isArgs()    {}

// DecodeArgs normalizes a payload to a mapping. Structured payloads are returned as-is;
// encoded payloads are JSON-decoded (a JSON string holding an object is unwrapped once).
// An empty encoded payload decodes to an empty mapping.
func DecodeArgs(a Args) (map[string]any, error) {
	switch v := a.(type) {
	case StructuredArgs:
		if v == nil {
			return map[string]any{}, nil
		}
		return map[string]any(v), nil
	case EncodedArgs:
		text := strings.TrimSpace(string(v))
		if text == "" {
			return map[string]any{}, nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(text), &decoded); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUndecodableArgs, err)
		}
		if inner, ok := decoded.(string); ok {
			return DecodeArgs(EncodedArgs(inner))
		}
		m, ok := decoded.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: expected object, got %T", ErrUndecodableArgs, decoded)
		}
		return m, nil
	case nil:
		return map[string]any{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported payload %T", ErrUndecodableArgs, a)
	}
}

// EncodeArgs renders a payload as JSON text.
func EncodeArgs(a Args) string {
	if enc, ok := a.(EncodedArgs); ok {
		return string(enc)
	}
	m, err := DecodeArgs(a)
	if err != nil {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// PendingCall is a gated tool call awaiting a resolution.
type PendingCall struct {
	ID       string
	ToolName string
	Args     Args
}

// Arguments decodes the call's payload.
func (c PendingCall) Arguments() (map[string]any, error) {
	return DecodeArgs(c.Args)
}

// Verdict is the outcome of a resolution.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictDenied   Verdict = "denied"
)

// Resolution is the external decision for one pending call.
type Resolution struct {
	Verdict Verdict
	// OverrideArgs replaces the call's payload before the tool runs (approved only).
	OverrideArgs map[string]any
	// Reason is returned to the agent as guidance (denied only).
	Reason string
}

// Approve approves a call with its original arguments.
func Approve() Resolution {
	return Resolution{Verdict: VerdictApproved}
}

// ApproveWithArgs approves a call and replaces its arguments.
func ApproveWithArgs(args map[string]any) Resolution {
	return Resolution{Verdict: VerdictApproved, OverrideArgs: args}
}

// Deny rejects a call; reason is forwarded to the agent.
func Deny(reason string) Resolution {
	return Resolution{Verdict: VerdictDenied, Reason: reason}
}

// Approved reports whether the call may execute.
func (r Resolution) Approved() bool {
	return r.Verdict == VerdictApproved
}

// Requests is what an agent returns when it paused on gated calls.
type Requests struct {
	Calls []PendingCall
}

// Results maps pending call IDs to their resolutions.
type Results map[string]Resolution

// Missing returns the IDs of pending calls without a resolution, in order.
func (r Results) Missing(pending []PendingCall) []string {
	var missing []string
	for _, call := range pending {
		if _, ok := r[call.ID]; !ok {
			missing = append(missing, call.ID)
		}
	}
	return missing
}

// Validate requires exactly one resolution per pending call and none for other IDs.
func (r Results) Validate(pending []PendingCall) error {
	if missing := r.Missing(pending); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteResolutions, strings.Join(missing, ", "))
	}

	known := make(map[string]struct{}, len(pending))
	for _, call := range pending {
		known[call.ID] = struct{}{}
	}
	for id := range r {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownResolution, id)
		}
	}

	for _, call := range pending {
		if v := r[call.ID].Verdict; v != VerdictApproved && v != VerdictDenied {
			return fmt.Errorf("resolution for %s has invalid verdict %q", call.ID, v)
		}
	}
	return nil
}
