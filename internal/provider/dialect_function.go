package provider

import (
	"encoding/json"
	"fmt"

	"github.com/tamalebot/tamalebot/internal/model"
)

// functionRequest is the wire shape for Dialect B: OpenAI-style function
// calling (spec §4.4, "Dialect B").
type functionRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []functionMessage  `json:"messages"`
	Tools     []functionToolDecl `json:"tools,omitempty"`
}

type functionMessage struct {
	Role       string             `json:"role"`
	Content    *string            `json:"content"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
	ToolCalls  []functionToolCall `json:"tool_calls,omitempty"`
}

type functionToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type functionToolDecl struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type functionResponse struct {
	Choices []struct {
		Message struct {
			Content   *string            `json:"content"`
			ToolCalls []functionToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// buildFunctionRequest translates the canonical history into the
// function-call wire format (spec §4.4, "Dialect B").
func buildFunctionRequest(modelID string, maxTokens int, systemPrompt string, history model.History, tools []model.ToolSchema) functionRequest {
	var messages []functionMessage
	if systemPrompt != "" {
		messages = append(messages, functionMessage{Role: "system", Content: strPtr(systemPrompt)})
	}

	for _, msg := range history {
		messages = append(messages, translateMessage(msg)...)
	}

	decls := make([]functionToolDecl, 0, len(tools))
	for _, t := range tools {
		var d functionToolDecl
		d.Type = "function"
		d.Function.Name = t.Name
		d.Function.Description = t.Description
		d.Function.Parameters = t.InputSchema
		decls = append(decls, d)
	}

	return functionRequest{Model: modelID, MaxTokens: maxTokens, Messages: messages, Tools: decls}
}

func translateMessage(msg model.Message) []functionMessage {
	if !msg.IsBlocks() {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "assistant"
		}
		return []functionMessage{{Role: role, Content: strPtr(msg.PlainText())}}
	}

	if msg.Role == model.RoleAssistant {
		return []functionMessage{translateAssistantBlocks(msg)}
	}

	// User messages with block content carry tool results: one wire
	// message per tool-result block (spec §4.4).
	var out []functionMessage
	for _, b := range msg.ToolResultBlocks() {
		content := b.Output
		if b.IsError {
			content = "ERROR: " + content
		}
		out = append(out, functionMessage{Role: "tool", ToolCallID: b.ToolUseResultID, Content: strPtr(content)})
	}
	return out
}

func translateAssistantBlocks(msg model.Message) functionMessage {
	var textParts []string
	var toolUse []model.Block
	for _, b := range msg.Blocks {
		switch b.Type {
		case model.BlockText:
			textParts = append(textParts, b.Text)
		case model.BlockToolUse:
			toolUse = append(toolUse, b)
		}
	}

	out := functionMessage{Role: "assistant"}
	if len(toolUse) == 0 {
		out.Content = strPtr(joinNewline(textParts))
		return out
	}

	if text := joinNewline(textParts); text != "" {
		out.Content = strPtr(text)
	}
	for _, b := range toolUse {
		args, _ := json.Marshal(b.ToolInput)
		call := functionToolCall{ID: b.ToolUseID, Type: "function"}
		call.Function.Name = b.ToolName
		call.Function.Arguments = string(args)
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out
}

// parseFunctionResponse normalizes a function-call-style response back to
// the canonical LLMResponse shape (spec §4.4, "Dialect B").
func parseFunctionResponse(resp functionResponse) (model.LLMResponse, error) {
	if len(resp.Choices) == 0 {
		return model.LLMResponse{}, fmt.Errorf("provider: function response has no choices")
	}
	choice := resp.Choices[0]

	text := ""
	if choice.Message.Content != nil {
		text = *choice.Message.Content
	}

	var calls []model.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "function" {
			continue
		}
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(args), &input); err != nil {
			return model.LLMResponse{}, fmt.Errorf("provider: parse tool call arguments: %w", err)
		}
		calls = append(calls, model.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}

	return model.LLMResponse{
		Text:         text,
		ToolCalls:    calls,
		StopReason:   choice.FinishReason,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func strPtr(s string) *string { return &s }
