// Package provider adapts the canonical message history (internal/model)
// to the wire format a specific LLM API expects, and normalizes its
// response back to model.LLMResponse (spec §4.4).
package provider

import (
	"context"
	"strings"

	"github.com/tamalebot/tamalebot/internal/model"
)

// Adapter sends one turn's history and tool catalog to an LLM and returns
// its normalized response.
type Adapter interface {
	SendMessage(ctx context.Context, history model.History, toolSchemas []model.ToolSchema) (model.LLMResponse, error)
}

// Dialect selects which wire translation an Adapter applies.
type Dialect int

const (
	// DialectNative passes the canonical history through unchanged —
	// native tool-use blocks on the wire (spec §4.4, "Dialect A").
	DialectNative Dialect = iota
	// DialectFunctionCall translates to the OpenAI-style function-call
	// convention at the boundary (spec §4.4, "Dialect B").
	DialectFunctionCall
)

// DetectDialect infers the wire dialect from a model identifier's prefix
// (spec §4.4). Unrecognized prefixes default to DialectNative.
func DetectDialect(modelID string) Dialect {
	lower := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return DialectNative
	case strings.HasPrefix(lower, "gpt"),
		strings.HasPrefix(lower, "o1"),
		strings.HasPrefix(lower, "o3"),
		strings.HasPrefix(lower, "kimi"),
		strings.HasPrefix(lower, "gemini"),
		strings.HasPrefix(lower, "minimax"):
		return DialectFunctionCall
	default:
		return DialectNative
	}
}
