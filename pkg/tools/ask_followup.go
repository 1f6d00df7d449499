package tools

import (
	"context"
	"fmt"
	"strings"

	"forgeloop/pkg/utils"
)

// FollowupAnswer pairs a question with the human's answer.
type FollowupAnswer struct {
	Question string `json:"question"`
	Answers  string `json:"answers"`
}

// AskFollowupTool asks the human clarifying questions. It is gated: the call pauses the agent
// and the answers are attached by the decision source as override arguments
// {"results": [{"question": ..., "answers": ...}]}.
type AskFollowupTool struct{}

// NewAskFollowupTool creates an ask_followup tool.
func NewAskFollowupTool() *AskFollowupTool {
	return &AskFollowupTool{}
}

// Name returns the tool name.
func (t *AskFollowupTool) Name() string {
	return ToolAskFollowup
}

// RequiresApproval marks the tool as gated.
func (t *AskFollowupTool) RequiresApproval() bool {
	return true
}

// PromptDocumentation returns formatted tool documentation for prompts.
func (t *AskFollowupTool) PromptDocumentation() string {
	return fmt.Sprintf(`- **ask_followup** - Ask the user clarifying questions before finalizing the plan
  - Parameters:
    - questions (array of strings, REQUIRED): 1 to %d focused questions
  - The run pauses until the user answers; answers arrive as the tool result`, MaxFollowupQuestions)
}

// Definition returns the tool definition for LLM.
func (t *AskFollowupTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolAskFollowup,
		Description: "Ask the user clarifying questions to resolve ambiguities in the requirements. Ask only what you cannot reasonably decide yourself.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"questions": {
					Type:        "array",
					Description: fmt.Sprintf("Between 1 and %d specific questions for the user", MaxFollowupQuestions),
					Items:       &Property{Type: "string"},
					MinItems:    intPtr(1),
					MaxItems:    intPtr(MaxFollowupQuestions),
				},
			},
			Required: []string{"questions"},
		},
	}
}

// Questions extracts the questions from a call's arguments.
func Questions(args map[string]any) []string {
	questions, err := utils.StringSliceArg(args, "questions")
	if err != nil {
		return nil
	}
	return questions
}

// ValidateArgs rejects calls without questions or with too many.
func (t *AskFollowupTool) ValidateArgs(args map[string]any) error {
	questions, err := utils.StringSliceArg(args, "questions")
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return fmt.Errorf("questions must contain at least one question")
	}
	if len(questions) > MaxFollowupQuestions {
		return fmt.Errorf("at most %d questions may be asked at once, got %d", MaxFollowupQuestions, len(questions))
	}
	for i, q := range questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("question %d is empty", i+1)
		}
	}
	return nil
}

// FollowupResults builds the override arguments carrying the human's answers.
func FollowupResults(answers []FollowupAnswer) map[string]any {
	results := make([]any, 0, len(answers))
	for _, a := range answers {
		results = append(results, map[string]any{"question": a.Question, "answers": a.Answers})
	}
	return map[string]any{"results": results}
}

// Exec formats the answers attached to an approved call.
func (t *AskFollowupTool) Exec(_ context.Context, args map[string]any) (*ExecResult, error) {
	raw, ok := args["results"].([]any)
	if !ok || len(raw) == 0 {
		return textResult("The user did not provide answers. Make reasonable assumptions and state them in the plan."), nil
	}

	var sb strings.Builder
	sb.WriteString("User answers:\n")
	for i, item := range raw {
		entry, _ := item.(map[string]any)
		question := utils.GetMapFieldOr(entry, "question", "")
		answer := utils.GetMapFieldOr(entry, "answers", "")
		if strings.TrimSpace(answer) == "" {
			answer = "(no answer)"
		}
		fmt.Fprintf(&sb, "%d. Q: %s\n   A: %s\n", i+1, question, answer)
	}
	return textResult(strings.TrimRight(sb.String(), "\n")), nil
}
