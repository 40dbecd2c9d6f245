package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamalebot/tamalebot/internal/model"
)

func TestDetectDialect(t *testing.T) {
	cases := map[string]Dialect{
		"claude-opus-4":       DialectNative,
		"claude-3-5-sonnet":   DialectNative,
		"gpt-4o":              DialectFunctionCall,
		"o1-preview":          DialectFunctionCall,
		"o3-mini":             DialectFunctionCall,
		"kimi-k2":             DialectFunctionCall,
		"gemini-2.0-flash":    DialectFunctionCall,
		"minimax-01":          DialectFunctionCall,
		"some-unknown-model":  DialectNative,
	}
	for modelID, want := range cases {
		require.Equal(t, want, DetectDialect(modelID), modelID)
	}
}

func TestBuildFunctionRequestTranslatesToolUseAndResults(t *testing.T) {
	history := model.History{
		model.NewUserText("what's the weather?"),
		model.NewMessage(model.RoleAssistant,
			model.NewTextBlock("checking now"),
			model.NewToolUseBlock("call-1", "weather", map[string]any{"city": "nyc"}),
		),
		model.NewMessage(model.RoleUser,
			model.NewToolResultBlock("call-1", "72F sunny", false),
		),
	}

	req := buildFunctionRequest("gpt-4o", 1024, "be helpful", history, nil)

	require.Equal(t, "system", req.Messages[0].Role)
	require.Equal(t, "user", req.Messages[1].Role)
	require.Equal(t, "assistant", req.Messages[2].Role)
	require.Equal(t, "checking now", *req.Messages[2].Content)
	require.Len(t, req.Messages[2].ToolCalls, 1)
	require.Equal(t, "weather", req.Messages[2].ToolCalls[0].Function.Name)
	require.Equal(t, "tool", req.Messages[3].Role)
	require.Equal(t, "call-1", req.Messages[3].ToolCallID)
	require.Equal(t, "72F sunny", *req.Messages[3].Content)
}

func TestBuildFunctionRequestPrefixesErrorResults(t *testing.T) {
	history := model.History{
		model.NewMessage(model.RoleUser, model.NewToolResultBlock("call-1", "file not found", true)),
	}
	req := buildFunctionRequest("gpt-4o", 1024, "", history, nil)
	require.Equal(t, "ERROR: file not found", *req.Messages[0].Content)
}

func TestParseFunctionResponseParsesToolCallArguments(t *testing.T) {
	resp := functionResponse{}
	resp.Choices = make([]struct {
		Message struct {
			Content   *string            `json:"content"`
			ToolCalls []functionToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	}, 1)
	resp.Choices[0].FinishReason = "tool_calls"
	tc := functionToolCall{ID: "call-1", Type: "function"}
	tc.Function.Name = "weather"
	tc.Function.Arguments = `{"city":"nyc"}`
	resp.Choices[0].Message.ToolCalls = []functionToolCall{tc}

	out, err := parseFunctionResponse(resp)
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	require.Equal(t, "weather", out.ToolCalls[0].Name)
	require.Equal(t, "nyc", out.ToolCalls[0].Input["city"])
}

func TestParseNativeResponseConcatenatesTextAndCollectsToolUse(t *testing.T) {
	resp := nativeResponse{
		Content: []model.Block{
			model.NewTextBlock("first"),
			model.NewTextBlock("second"),
			model.NewToolUseBlock("call-1", "shell", map[string]any{"command": "ls"}),
		},
		StopReason: "tool_use",
	}
	out := parseNativeResponse(resp)
	require.Equal(t, "first\nsecond", out.Text)
	require.Len(t, out.ToolCalls, 1)
	require.Equal(t, "shell", out.ToolCalls[0].Name)
}
