package provider

import (
	"github.com/tamalebot/tamalebot/internal/model"
)

// nativeRequest is the wire shape for Dialect A: the canonical history and
// tool schemas pass through with no translation (spec §4.4).
type nativeRequest struct {
	Model        string             `json:"model"`
	MaxTokens    int                `json:"max_tokens"`
	System       string             `json:"system,omitempty"`
	Messages     model.History      `json:"messages"`
	Tools        []nativeToolSchema `json:"tools,omitempty"`
}

type nativeToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type nativeResponse struct {
	Content    []model.Block `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func buildNativeRequest(modelID string, maxTokens int, systemPrompt string, history model.History, tools []model.ToolSchema) nativeRequest {
	schemas := make([]nativeToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, nativeToolSchema{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return nativeRequest{
		Model:     modelID,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  history,
		Tools:     schemas,
	}
}

// parseNativeResponse concatenates text blocks with newline separators and
// collects tool-use blocks as tool calls (spec §4.4, "Dialect A").
func parseNativeResponse(resp nativeResponse) model.LLMResponse {
	var textParts []string
	var calls []model.ToolCall
	for _, b := range resp.Content {
		switch b.Type {
		case model.BlockText:
			textParts = append(textParts, b.Text)
		case model.BlockToolUse:
			calls = append(calls, model.ToolCall{ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput})
		}
	}
	return model.LLMResponse{
		Text:         joinNewline(textParts),
		ToolCalls:    calls,
		StopReason:   resp.StopReason,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
}

func joinNewline(parts []string) string {
	out := ""
	for _, p := range parts {
		if out != "" {
			out += "\n"
		}
		out += p
	}
	return out
}
