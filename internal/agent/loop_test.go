package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/policy"
	"github.com/tamalebot/tamalebot/internal/storage"
	"github.com/tamalebot/tamalebot/internal/tools"
)

// scriptedProvider replays a fixed sequence of responses, one per call, so
// the loop's control flow can be exercised deterministically.
type scriptedProvider struct {
	responses []model.LLMResponse
	calls     int
}

func (p *scriptedProvider) SendMessage(_ context.Context, _ model.History, _ []model.ToolSchema) (model.LLMResponse, error) {
	if p.calls >= len(p.responses) {
		return model.LLMResponse{}, fmt.Errorf("scriptedProvider: no more responses")
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

func newTestExecutor(t *testing.T) *tools.Executor {
	t.Helper()
	j, err := audit.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	pol := policy.New(model.PolicyConfig{}, t.TempDir())
	return tools.New(pol, j, nil, storage.NewMemoryBackend(), "agent-a", t.TempDir(), nil)
}

func TestLoopTerminatesOnTextOnlyResponse(t *testing.T) {
	p := &scriptedProvider{responses: []model.LLMResponse{
		{Text: "hello there", InputTokens: 10, OutputTokens: 5},
	}}
	loop := New(p, newTestExecutor(t))

	result, history, err := loop.Run(context.Background(), "hi", nil, Hooks{})
	require.NoError(t, err)
	require.Equal(t, "hello there", result.Text)
	require.Equal(t, 1, result.Iterations)
	require.Equal(t, 0, result.ToolCallCount)
	require.Equal(t, 10, result.TotalInputTokens)
	require.Equal(t, 5, result.TotalOutputTokens)

	require.Len(t, history, 2)
	require.Equal(t, model.RoleUser, history[0].Role)
	require.Equal(t, model.RoleAssistant, history[1].Role)
}

func TestLoopExecutesToolCallsSequentially(t *testing.T) {
	p := &scriptedProvider{responses: []model.LLMResponse{
		{
			Text:      "let me check",
			ToolCalls: []model.ToolCall{{ID: "call-1", Name: "shell", Input: map[string]any{"command": "echo hi"}}},
		},
		{Text: "done"},
	}}
	loop := New(p, newTestExecutor(t))

	var calledTools []string
	hooks := Hooks{OnToolCall: func(call model.ToolCall) { calledTools = append(calledTools, call.Name) }}

	result, history, err := loop.Run(context.Background(), "run echo", nil, hooks)
	require.NoError(t, err)
	require.Equal(t, "done", result.Text)
	require.Equal(t, 2, result.Iterations)
	require.Equal(t, 1, result.ToolCallCount)
	require.Equal(t, []string{"shell"}, calledTools)

	// user, assistant(tool_use), user(tool_result), assistant(text)
	require.Len(t, history, 4)
	require.Equal(t, model.RoleAssistant, history[1].Role)
	require.Len(t, history[1].ToolUseBlocks(), 1)
	require.Equal(t, model.RoleUser, history[2].Role)
	require.Len(t, history[2].ToolResultBlocks(), 1)
	require.Equal(t, "call-1", history[2].ToolResultBlocks()[0].ToolUseResultID)
}

func TestLoopStopsAtIterationBoundWithLastText(t *testing.T) {
	responses := make([]model.LLMResponse, 3)
	for i := range responses {
		responses[i] = model.LLMResponse{
			Text:      fmt.Sprintf("iteration %d", i+1),
			ToolCalls: []model.ToolCall{{ID: fmt.Sprintf("call-%d", i), Name: "shell", Input: map[string]any{"command": "true"}}},
		}
	}
	p := &scriptedProvider{responses: responses}
	loop := New(p, newTestExecutor(t))
	loop.MaxIterations = 3

	result, _, err := loop.Run(context.Background(), "loop forever", nil, Hooks{})
	require.NoError(t, err)
	require.Equal(t, "iteration 3", result.Text)
	require.Equal(t, 3, result.Iterations)
	require.Equal(t, 3, result.ToolCallCount)
}

func TestLoopPropagatesProviderError(t *testing.T) {
	p := &scriptedProvider{} // no responses configured
	loop := New(p, newTestExecutor(t))

	_, _, err := loop.Run(context.Background(), "hi", nil, Hooks{})
	require.Error(t, err)
}

func TestLoopMarksErrorFlagOnFailedTool(t *testing.T) {
	p := &scriptedProvider{responses: []model.LLMResponse{
		{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "file_read", Input: map[string]any{"path": "/nonexistent"}}}},
		{Text: "ok"},
	}}
	loop := New(p, newTestExecutor(t))

	_, history, err := loop.Run(context.Background(), "read a missing file", nil, Hooks{})
	require.NoError(t, err)
	require.True(t, history[2].ToolResultBlocks()[0].IsError)
}
