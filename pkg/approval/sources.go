package approval

import (
	"context"
	"strings"

	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/tools"
)

// DefaultAutoAnswer answers follow-up questions when no human is present.
const DefaultAutoAnswer = "No preference. Choose a sensible default and state it in the plan."

// callArgs decodes a pending call's payload. An undecodable payload is treated as empty.
func callArgs(call deferred.PendingCall, logger *logx.Logger) map[string]any {
	args, err := call.Arguments()
	if err != nil {
		logger.Warn("Cannot decode arguments of %s call %s, treating them as empty: %v", call.ToolName, call.ID, err)
		return map[string]any{}
	}
	return args
}

// AutoSource approves every call and answers follow-up questions with Answer.
type AutoSource struct {
	Answer string
	Logger *logx.Logger
}

// NewAutoSource creates an unattended decision source.
func NewAutoSource(logger *logx.Logger) *AutoSource {
	if logger == nil {
		logger = logx.NewLogger("approval")
	}
	return &AutoSource{Answer: DefaultAutoAnswer, Logger: logger}
}

// Resolve approves call. Follow-up calls get an answer per question.
func (s *AutoSource) Resolve(_ context.Context, call deferred.PendingCall) (deferred.Resolution, error) {
	if call.ToolName != tools.ToolAskFollowup {
		return deferred.Approve(), nil
	}

	answer := strings.TrimSpace(s.Answer)
	if answer == "" {
		answer = DefaultAutoAnswer
	}
	questions := tools.Questions(callArgs(call, s.Logger))
	answers := make([]tools.FollowupAnswer, 0, len(questions))
	for _, q := range questions {
		answers = append(answers, tools.FollowupAnswer{Question: q, Answers: answer})
	}
	return deferred.ApproveWithArgs(tools.FollowupResults(answers)), nil
}
