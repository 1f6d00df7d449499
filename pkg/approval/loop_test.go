package approval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/agent"
	"forgeloop/pkg/agent/llm"
	"forgeloop/pkg/deferred"
	"forgeloop/pkg/plan"
	"forgeloop/pkg/tools"
)

// scriptedDriver returns queued results and records every resume.
type scriptedDriver struct {
	results   []agent.Result[string]
	err       error
	resumeErr error
	resumes   []deferred.Results
	prompts   []string
	position  int
}

func (d *scriptedDriver) next() (agent.Result[string], error) {
	if d.err != nil {
		return agent.Result[string]{}, d.err
	}
	r := d.results[d.position]
	d.position++
	return r, nil
}

func (d *scriptedDriver) Run(_ context.Context, prompt string) (agent.Result[string], error) {
	d.prompts = append(d.prompts, prompt)
	return d.next()
}

func (d *scriptedDriver) Resume(_ context.Context, results deferred.Results, continuation string) (agent.Result[string], error) {
	d.resumes = append(d.resumes, results)
	d.prompts = append(d.prompts, continuation)
	if d.resumeErr != nil {
		return agent.Result[string]{}, d.resumeErr
	}
	return d.next()
}

func pending(calls ...deferred.PendingCall) agent.Result[string] {
	return agent.Result[string]{Deferred: &deferred.Requests{Calls: calls}}
}

type countingObserver struct {
	rounds      int
	resolutions map[string]int
}

func (o *countingObserver) IncApprovalRound() { o.rounds++ }
func (o *countingObserver) IncResolution(tool, verdict string) {
	if o.resolutions == nil {
		o.resolutions = map[string]int{}
	}
	o.resolutions[tool+"/"+verdict]++
}

type memoryRecorder struct {
	ids []string
}

func (m *memoryRecorder) RecordDecision(_ context.Context, call deferred.PendingCall, _ deferred.Resolution) error {
	m.ids = append(m.ids, call.ID)
	return errors.New("disk full")
}

func TestLoopResolvesEveryCallInOrder(t *testing.T) {
	driver := &scriptedDriver{results: []agent.Result[string]{
		pending(
			deferred.PendingCall{ID: "a", ToolName: tools.ToolAskFollowup, Args: deferred.EncodedArgs(`{"questions":["Q?"]}`)},
			deferred.PendingCall{ID: "b", ToolName: tools.ToolApprove, Args: deferred.StructuredArgs{"plan": "p"}},
		),
		pending(deferred.PendingCall{ID: "c", ToolName: tools.ToolApprove}),
		{Output: "done"},
	}}

	var order []string
	source := SourceFunc(func(_ context.Context, call deferred.PendingCall) (deferred.Resolution, error) {
		order = append(order, call.ID)
		if call.ID == "b" {
			return deferred.Deny("add auth"), nil
		}
		return deferred.Approve(), nil
	})
	observer := &countingObserver{}
	recorder := &memoryRecorder{}

	loop := NewLoop[string](driver, source, Options{Observer: observer, Recorder: recorder})
	out, err := loop.Run(context.Background(), "build me a thing")

	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, StateComplete, loop.State())
	assert.Equal(t, 2, loop.Rounds())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []string{"a", "b", "c"}, recorder.ids, "recorder failures are logged, not fatal")

	require.Len(t, driver.resumes, 2)
	assert.Len(t, driver.resumes[0], 2)
	assert.Equal(t, "add auth", driver.resumes[0]["b"].Reason)
	assert.Equal(t, []string{"build me a thing", ContinuePrompt, ContinuePrompt}, driver.prompts)

	assert.Equal(t, 2, observer.rounds)
	assert.Equal(t, 1, observer.resolutions["approve/denied"])
	assert.Equal(t, 1, observer.resolutions["approve/approved"])
}

func TestLoopStopsOnSourceFailure(t *testing.T) {
	driver := &scriptedDriver{results: []agent.Result[string]{
		pending(deferred.PendingCall{ID: "a", ToolName: tools.ToolApprove}),
	}}
	source := SourceFunc(func(context.Context, deferred.PendingCall) (deferred.Resolution, error) {
		return deferred.Resolution{}, ErrInputClosed
	})

	loop := NewLoop[string](driver, source, Options{})
	_, err := loop.Run(context.Background(), "x")

	require.ErrorIs(t, err, ErrInputClosed)
	assert.Equal(t, StateAwaitingResolution, loop.State())
	assert.Empty(t, driver.resumes)
}

func TestLoopStopsOnDriverFailure(t *testing.T) {
	driver := &scriptedDriver{err: errors.New("model down")}
	loop := NewLoop[string](driver, NewAutoSource(nil), Options{})

	_, err := loop.Run(context.Background(), "x")
	assert.EqualError(t, err, "model down")
}

func TestLoopStopsOnResumeFailure(t *testing.T) {
	driver := &scriptedDriver{
		results: []agent.Result[string]{
			pending(deferred.PendingCall{ID: "a", ToolName: tools.ToolApprove}),
		},
		resumeErr: errors.New("model service down"),
	}
	loop := NewLoop[string](driver, NewAutoSource(nil), Options{})

	out, err := loop.Run(context.Background(), "x")

	require.EqualError(t, err, "model service down")
	assert.Empty(t, out)
	assert.Len(t, driver.resumes, 1)
	assert.Equal(t, StateRunning, loop.State())
	assert.Equal(t, 1, loop.Rounds())
}

func TestLoopRequiresSource(t *testing.T) {
	loop := NewLoop[string](&scriptedDriver{}, nil, Options{})
	_, err := loop.Run(context.Background(), "x")
	assert.Error(t, err)
}

func TestLoopCancelledWhileAwaiting(t *testing.T) {
	driver := &scriptedDriver{results: []agent.Result[string]{
		pending(deferred.PendingCall{ID: "a", ToolName: tools.ToolApprove}),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoop[string](driver, NewAutoSource(nil), Options{}).Run(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanningRoundTripWithAgent(t *testing.T) {
	planJSON := `{"overview":"Todo","technology_stack":"Go","prerequisites":[],"core_features":["add"],
		"key_interactions":[],"implementation_steps":[{"task_name":"T","implementation_steps":["s"]}],
		"success_criteria":["works"]}`
	client := agent.NewMockLLMClient([]llm.CompletionResponse{
		agent.ToolTurn(agent.Call("q1", tools.ToolAskFollowup, `{"questions":["Web or CLI?","Auth?"]}`)),
		agent.ToolTurn(agent.Call("a1", tools.ToolApprove, `{"plan":"CLI todo"}`)),
		agent.ToolTurn(agent.Call("a2", tools.ToolApprove, `{"plan":"CLI todo with auth"}`)),
		agent.ToolTurn(agent.Call("s1", tools.ToolSubmitPlan, planJSON)),
	}, nil).WithModel("claude-sonnet-4-5")

	planner, err := agent.NewPlanner(client, nil, agent.Options{SystemPrompt: "plan"})
	require.NoError(t, err)

	denied := false
	source := SourceFunc(func(_ context.Context, call deferred.PendingCall) (deferred.Resolution, error) {
		switch call.ToolName {
		case tools.ToolAskFollowup:
			return deferred.ApproveWithArgs(tools.FollowupResults([]tools.FollowupAnswer{
				{Question: "Web or CLI?", Answers: "CLI"},
				{Question: "Auth?", Answers: "yes"},
			})), nil
		default:
			if !denied {
				denied = true
				return deferred.Deny("You forgot auth"), nil
			}
			return deferred.Approve(), nil
		}
	})

	result, err := NewLoop[*plan.Plan](planner, source, Options{}).Run(context.Background(), "Todo app")
	require.NoError(t, err)
	assert.Equal(t, "Todo", result.Overview)

	requests := client.Requests()
	require.Len(t, requests, 4)

	answers := requests[1].Messages[len(requests[1].Messages)-1]
	require.Len(t, answers.ToolResults, 1)
	assert.Equal(t, "q1", answers.ToolResults[0].ToolCallID)
	assert.Contains(t, answers.ToolResults[0].Content, "A: CLI")
	assert.Equal(t, ContinuePrompt, answers.Content)

	denial := requests[2].Messages[len(requests[2].Messages)-1]
	require.Len(t, denial.ToolResults, 1)
	assert.True(t, denial.ToolResults[0].IsError)
	assert.Contains(t, denial.ToolResults[0].Content, "You forgot auth")
}
