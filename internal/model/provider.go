package model

// ToolSchema describes one tool entry forwarded to the LLM: name,
// human-readable description, and a JSON-schema-shaped input schema
// (spec §4.5). Mirrors the shape mark3labs/mcp-go's mcp.Tool exposes so the
// same catalog can be surfaced natively over MCP (see internal/mcp).
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is one tool invocation the LLM proposed.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// LLMResponse is the canonical response shape every provider adapter
// normalizes to (spec §4.4).
type LLMResponse struct {
	Text         string
	ToolCalls    []ToolCall
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// ToolResult is what a mediated tool invocation returns to the agent loop
// (spec §4.5).
type ToolResult struct {
	Output  string
	IsError bool
}
