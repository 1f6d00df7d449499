package toolloop_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/agent/toolloop"
	"forgeloop/pkg/contextmgr"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/logx"
	"forgeloop/pkg/tools"
)

// mockLLMClient replays scripted responses and records every request.
type mockLLMClient struct {
	model     string
	responses []llm.CompletionResponse
	err       error
	requests  []llm.CompletionRequest
}

func (m *mockLLMClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return llm.CompletionResponse{}, m.err
	}
	if len(m.requests) > len(m.responses) {
		return llm.CompletionResponse{}, errors.New("no more mock responses")
	}
	return m.responses[len(m.requests)-1], nil
}

func (m *mockLLMClient) GetModelName() string {
	if m.model == "" {
		return "mock-model"
	}
	return m.model
}

// mockTool is a general tool that records its calls.
type mockTool struct {
	name   string
	result string
	calls  []map[string]any
}

func (m *mockTool) Name() string { return m.name }

func (m *mockTool) Definition() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        m.name,
		Description: "Mock general tool",
		InputSchema: tools.InputSchema{Type: "object", Properties: map[string]tools.Property{}},
	}
}

func (m *mockTool) PromptDocumentation() string { return "Mock tool documentation" }

func (m *mockTool) Exec(_ context.Context, args map[string]any) (*tools.ExecResult, error) {
	m.calls = append(m.calls, args)
	return &tools.ExecResult{Content: m.result}, nil
}

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Args: deferred.EncodedArgs(args)}
}

func toolTurn(calls ...llm.ToolCall) llm.CompletionResponse {
	return llm.CompletionResponse{ToolCalls: calls, StopReason: llm.StopReasonToolUse, Usage: llm.Usage{InputTokens: 100, OutputTokens: 20}}
}

func newConfig(general ...tools.Tool) *toolloop.Config[string] {
	return &toolloop.Config[string]{
		ContextManager: contextmgr.NewContextManager(),
		GeneralTools:   general,
		TerminalTool:   tools.NewDoneTool(),
		InitialPrompt:  "Build it",
		MaxIterations:  5,
	}
}

func lastUser(req llm.CompletionRequest) llm.CompletionMessage {
	return req.Messages[len(req.Messages)-1]
}

func TestRunCompletesOnTerminalTool(t *testing.T) {
	exec := &mockTool{name: tools.ToolExecute, result: "hello"}
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(call("1", tools.ToolExecute, `{"command":"echo hello"}`)),
		toolTurn(call("2", tools.ToolDone, `{"summary":"  built  "}`)),
	}}
	cfg := newConfig(exec)

	out := toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), cfg)

	if out.Kind != toolloop.OutcomeSuccess {
		t.Fatalf("expected success, got %v (%v)", out.Kind, out.Err)
	}
	if out.Value != "built" || out.Signal != tools.ToolDone || out.Iteration != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(exec.calls) != 1 || exec.calls[0]["command"] != "echo hello" {
		t.Errorf("expected execute to run once, got %v", exec.calls)
	}

	second := lastUser(client.requests[1])
	if len(second.ToolResults) != 1 || !strings.HasSuffix(second.ToolResults[0].Content, "hello") {
		t.Errorf("expected execute result in second request, got %+v", second.ToolResults)
	}
	if len(client.requests[0].Tools) != 2 {
		t.Errorf("expected general and terminal tool definitions, got %d", len(client.requests[0].Tools))
	}
}

func TestDeferredTurnResumesWithAnswers(t *testing.T) {
	exec := &mockTool{name: tools.ToolExecute, result: "ok"}
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(
			call("q1", tools.ToolAskFollowup, `{"questions":["Which database?"]}`),
			call("x1", tools.ToolExecute, `{"command":"ls"}`),
		),
		toolTurn(call("d1", tools.ToolDone, `{"summary":"planned"}`)),
	}}
	cfg := newConfig(tools.NewAskFollowupTool(), exec)
	tl := toolloop.New(client, logx.NewLogger("test"))

	out := toolloop.Run(tl, context.Background(), cfg)
	if !out.Deferred() {
		t.Fatalf("expected deferred outcome, got %v (%v)", out.Kind, out.Err)
	}
	if len(out.Pending) != 1 || out.Pending[0].ID != "q1" || out.Pending[0].ToolName != tools.ToolAskFollowup {
		t.Fatalf("unexpected pending calls %+v", out.Pending)
	}
	if len(exec.calls) != 1 {
		t.Errorf("non-gated call of the deferred turn should run, got %d calls", len(exec.calls))
	}
	if len(client.requests) != 1 {
		t.Fatalf("expected one model call before deferral, got %d", len(client.requests))
	}

	answers := tools.FollowupResults([]tools.FollowupAnswer{{Question: "Which database?", Answers: "PostgreSQL"}})
	results := deferred.Results{"q1": deferred.ApproveWithArgs(answers)}
	out = toolloop.Resume(tl, context.Background(), cfg, out.Pending, results, "Continue with the next step.")
	if out.Kind != toolloop.OutcomeSuccess || out.Value != "planned" {
		t.Fatalf("expected success after resume, got %v (%v)", out.Kind, out.Err)
	}

	resumed := lastUser(client.requests[1])
	if resumed.Content != "Continue with the next step." {
		t.Errorf("expected continuation text, got %q", resumed.Content)
	}
	if len(resumed.ToolResults) != 2 {
		t.Fatalf("expected results for both calls in one turn, got %+v", resumed.ToolResults)
	}
	if resumed.ToolResults[0].ToolCallID != "x1" || resumed.ToolResults[1].ToolCallID != "q1" {
		t.Errorf("unexpected result order %+v", resumed.ToolResults)
	}
	if !strings.Contains(resumed.ToolResults[1].Content, "A: PostgreSQL") {
		t.Errorf("expected answers in follow-up result, got %q", resumed.ToolResults[1].Content)
	}
}

func TestResumeRejectsMissingResolutionBeforeModelCall(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(
			call("q1", tools.ToolAskFollowup, `{"questions":["A?"]}`),
			call("q2", tools.ToolAskFollowup, `{"questions":["B?"]}`),
		),
	}}
	cfg := newConfig(tools.NewAskFollowupTool())
	tl := toolloop.New(client, logx.NewLogger("test"))

	out := toolloop.Run(tl, context.Background(), cfg)
	if len(out.Pending) != 2 {
		t.Fatalf("expected 2 pending calls, got %+v", out.Pending)
	}

	out = toolloop.Resume(tl, context.Background(), cfg, out.Pending, deferred.Results{"q1": deferred.Approve()}, "Continue")
	if out.Kind != toolloop.OutcomeResolutionError {
		t.Fatalf("expected resolution error, got %v", out.Kind)
	}
	if !errors.Is(out.Err, deferred.ErrIncompleteResolutions) {
		t.Errorf("expected ErrIncompleteResolutions, got %v", out.Err)
	}
	if len(client.requests) != 1 {
		t.Errorf("model must not be called on a rejected resume, got %d calls", len(client.requests))
	}
	if cfg.ContextManager.PendingResultCount() != 0 {
		t.Error("no result may be recorded on a rejected resume")
	}
}

func TestDeniedReasonReachesNextTurn(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(call("a1", tools.ToolApprove, `{"plan":"A todo app"}`)),
		toolTurn(call("d1", tools.ToolDone, `{"summary":"revised"}`)),
	}}
	cfg := newConfig(tools.NewApproveTool())
	tl := toolloop.New(client, logx.NewLogger("test"))

	out := toolloop.Run(tl, context.Background(), cfg)
	out = toolloop.Resume(tl, context.Background(), cfg, out.Pending,
		deferred.Results{"a1": deferred.Deny("add user accounts")}, "Continue")
	if out.Kind != toolloop.OutcomeSuccess {
		t.Fatalf("a denial must not end the run, got %v (%v)", out.Kind, out.Err)
	}

	result := lastUser(client.requests[1]).ToolResults[0]
	if !result.IsError || !strings.Contains(result.Content, "add user accounts") {
		t.Errorf("expected denial reason in result, got %+v", result)
	}
}

func TestInvalidGatedCallIsNotDeferred(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(call("q1", tools.ToolAskFollowup, `{"questions":[]}`)),
		toolTurn(call("d1", tools.ToolDone, `{"summary":"done"}`)),
	}}
	cfg := newConfig(tools.NewAskFollowupTool())

	out := toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), cfg)
	if out.Kind != toolloop.OutcomeSuccess {
		t.Fatalf("expected success, got %v (%v)", out.Kind, out.Err)
	}
	result := lastUser(client.requests[1]).ToolResults[0]
	if !result.IsError || !strings.Contains(result.Content, "invalid arguments") {
		t.Errorf("expected validation error result, got %+v", result)
	}
}

func TestUndecodableGatedPayloadIsRejected(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(call("q1", tools.ToolAskFollowup, `{not json`)),
		toolTurn(call("d1", tools.ToolDone, `{"summary":"done"}`)),
	}}
	cfg := newConfig(tools.NewAskFollowupTool())

	out := toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), cfg)
	if out.Kind != toolloop.OutcomeSuccess {
		t.Fatalf("expected success, got %v (%v)", out.Kind, out.Err)
	}
	if result := lastUser(client.requests[1]).ToolResults[0]; !result.IsError {
		t.Errorf("expected empty-argument validation error, got %+v", result)
	}
}

func TestDeferralWinsOverTerminalInSameTurn(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(
			call("q1", tools.ToolAskFollowup, `{"questions":["A?"]}`),
			call("d1", tools.ToolDone, `{"summary":"too early"}`),
		),
	}}
	cfg := newConfig(tools.NewAskFollowupTool())

	out := toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), cfg)
	if !out.Deferred() {
		t.Fatalf("expected deferral, got %v", out.Kind)
	}
	if out.Value != "" {
		t.Errorf("deferred outcome must not carry a value, got %q", out.Value)
	}
	if cfg.ContextManager.PendingResultCount() != 1 {
		t.Errorf("expected held-back terminal call to get an error result")
	}
}

func TestNoToolTwice(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		{Content: "thinking"},
		{Content: "still thinking"},
	}}
	out := toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), newConfig())

	if out.Kind != toolloop.OutcomeNoToolTwice || !errors.Is(out.Err, toolloop.ErrNoTerminalTool) {
		t.Errorf("expected NoToolTwice with ErrNoTerminalTool, got %v (%v)", out.Kind, out.Err)
	}
	if nudge := lastUser(client.requests[1]).Content; !strings.Contains(nudge, tools.ToolDone) {
		t.Errorf("expected nudge naming the terminal tool, got %q", nudge)
	}
}

func TestLLMErrorIsFatal(t *testing.T) {
	client := &mockLLMClient{err: errors.New("boom")}
	out := toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), newConfig())
	if out.Kind != toolloop.OutcomeLLMError || out.Err == nil {
		t.Errorf("expected LLM error, got %v", out.Kind)
	}
}

func TestCancelledContextIsShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &mockLLMClient{err: context.Canceled}

	out := toolloop.Run(toolloop.New(client, logx.NewLogger("test")), ctx, newConfig())
	if !toolloop.IsShutdown(out.Err) {
		t.Errorf("expected graceful shutdown error, got %v", out.Err)
	}
}

func TestMaxIterations(t *testing.T) {
	exec := &mockTool{name: tools.ToolExecute, result: "ok"}
	var responses []llm.CompletionResponse
	for i := 0; i < 3; i++ {
		responses = append(responses, toolTurn(call("x", tools.ToolExecute, `{}`)))
	}
	cfg := newConfig(exec)
	cfg.MaxIterations = 3

	out := toolloop.Run(toolloop.New(&mockLLMClient{responses: responses}, logx.NewLogger("test")), context.Background(), cfg)
	if out.Kind != toolloop.OutcomeMaxIterations || out.Iteration != 3 {
		t.Errorf("expected max iterations at 3, got %v at %d", out.Kind, out.Iteration)
	}
}

func TestUsageWarningPrefix(t *testing.T) {
	tests := []struct {
		model      string
		wantPrefix bool
	}{
		{"gpt-4o", true},
		{"claude-sonnet-4-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			exec := &mockTool{name: tools.ToolExecute, result: "ok"}
			client := &mockLLMClient{model: tt.model, responses: []llm.CompletionResponse{
				toolTurn(call("x", tools.ToolExecute, `{}`)),
				toolTurn(call("d", tools.ToolDone, `{"summary":"s"}`)),
			}}
			toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), newConfig(exec))

			content := lastUser(client.requests[1]).ToolResults[0].Content
			hasPrefix := strings.HasPrefix(content, tools.UsageWarning(120))
			if hasPrefix != tt.wantPrefix {
				t.Errorf("prefix present = %v, want %v (content %q)", hasPrefix, tt.wantPrefix, content)
			}
		})
	}
}

func TestUsageWarningIsCumulative(t *testing.T) {
	exec := &mockTool{name: tools.ToolExecute, result: "ok"}
	client := &mockLLMClient{model: "gpt-4o", responses: []llm.CompletionResponse{
		toolTurn(call("x", tools.ToolExecute, `{}`)),
		toolTurn(call("y", tools.ToolExecute, `{}`)),
		toolTurn(call("d", tools.ToolDone, `{"summary":"s"}`)),
	}}
	toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), newConfig(exec))

	content := lastUser(client.requests[2]).ToolResults[0].Content
	if !strings.HasPrefix(content, tools.UsageWarning(240)) {
		t.Errorf("expected usage of both requests, got %q", content)
	}
}

type recordingObserver struct {
	events []string
}

func (r *recordingObserver) ToolCall(tool, outcome string) {
	r.events = append(r.events, tool+":"+outcome)
}

func TestObserverSeesEveryCall(t *testing.T) {
	client := &mockLLMClient{responses: []llm.CompletionResponse{
		toolTurn(call("u", "unknown_tool", `{}`), call("d", tools.ToolDone, `{"summary":"s"}`)),
	}}
	obs := &recordingObserver{}
	cfg := newConfig()
	cfg.Observer = obs

	toolloop.Run(toolloop.New(client, logx.NewLogger("test")), context.Background(), cfg)
	want := []string{"unknown_tool:error", "done:ok"}
	if strings.Join(obs.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", obs.events, want)
	}
}

func TestConfigValidation(t *testing.T) {
	out := toolloop.Run(toolloop.New(&mockLLMClient{}, nil), context.Background(), &toolloop.Config[string]{})
	if out.Kind != toolloop.OutcomeConfigError || !errors.Is(out.Err, toolloop.ErrInvalidConfig) {
		t.Errorf("expected config error, got %v (%v)", out.Kind, out.Err)
	}
}
