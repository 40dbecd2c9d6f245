// Package agent implements the bounded tool-use conversation loop that
// drives one turn from user text to final assistant text (spec §4.6).
package agent

import (
	"context"
	"fmt"

	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/provider"
	"github.com/tamalebot/tamalebot/internal/tools"
)

const defaultMaxIterations = 20

// Hooks are optional observation points fired at the same places the
// algorithm in spec §4.6 names them. Any hook left nil is skipped.
type Hooks struct {
	OnTokenUsage func(inputTokens, outputTokens int)
	OnText       func(text string)
	OnToolCall   func(call model.ToolCall)
	OnToolResult func(call model.ToolCall, result model.ToolResult)
}

// Result is what one turn of the loop produces (spec §4.6).
type Result struct {
	Text              string
	ToolCallCount     int
	TotalInputTokens  int
	TotalOutputTokens int
	Iterations        int
}

// Loop drives one conversation turn: a provider adapter for the LLM, a
// tool executor for mediated side effects, and a bound on how many
// provider round-trips a single turn may take.
type Loop struct {
	Provider      provider.Adapter
	Tools         *tools.Executor
	Catalog       []model.ToolSchema
	MaxIterations int
}

// New constructs a Loop with the spec's default iteration bound.
func New(adapter provider.Adapter, executor *tools.Executor) *Loop {
	return &Loop{
		Provider:      adapter,
		Tools:         executor,
		Catalog:       executor.Catalog(),
		MaxIterations: defaultMaxIterations,
	}
}

// Run executes one turn (spec §4.6). It appends to history with the
// append semantics the spec describes and returns the extended history;
// the caller's own slice header is not updated, so callers keep the
// returned History.
func (l *Loop) Run(ctx context.Context, userText string, history model.History, hooks Hooks) (Result, model.History, error) {
	maxIterations := l.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	history = append(history, model.NewUserText(userText))

	var result Result
	var lastText string

	for iteration := 0; iteration < maxIterations; iteration++ {
		result.Iterations = iteration + 1

		resp, err := l.Provider.SendMessage(ctx, history, l.Catalog)
		if err != nil {
			return result, history, fmt.Errorf("agent: provider call failed on iteration %d: %w", iteration+1, err)
		}

		result.TotalInputTokens += resp.InputTokens
		result.TotalOutputTokens += resp.OutputTokens
		if hooks.OnTokenUsage != nil {
			hooks.OnTokenUsage(resp.InputTokens, resp.OutputTokens)
		}

		lastText = resp.Text
		if hooks.OnText != nil {
			hooks.OnText(resp.Text)
		}

		if len(resp.ToolCalls) == 0 {
			history = append(history, model.NewAssistantText(resp.Text))
			result.Text = resp.Text
			return result, history, nil
		}

		var assistantBlocks []model.Block
		if resp.Text != "" {
			assistantBlocks = append(assistantBlocks, model.NewTextBlock(resp.Text))
		}
		for _, call := range resp.ToolCalls {
			assistantBlocks = append(assistantBlocks, model.NewToolUseBlock(call.ID, call.Name, call.Input))
		}
		history = append(history, model.NewMessage(model.RoleAssistant, assistantBlocks...))

		var resultBlocks []model.Block
		for _, call := range resp.ToolCalls {
			if hooks.OnToolCall != nil {
				hooks.OnToolCall(call)
			}

			toolResult := l.Tools.Execute(ctx, call.Name, call.Input)
			result.ToolCallCount++

			if hooks.OnToolResult != nil {
				hooks.OnToolResult(call, toolResult)
			}

			resultBlocks = append(resultBlocks, model.NewToolResultBlock(call.ID, toolResult.Output, toolResult.IsError))
		}
		history = append(history, model.NewMessage(model.RoleUser, resultBlocks...))
	}

	// Hit the iteration bound without a text-only response: return the
	// most recent captured text, history reflects everything appended so
	// far (spec §4.6).
	result.Text = lastText
	return result, history, nil
}
