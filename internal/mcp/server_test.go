package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/policy"
	"github.com/tamalebot/tamalebot/internal/storage"
	"github.com/tamalebot/tamalebot/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	j, err := audit.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	pol := policy.New(model.PolicyConfig{}, t.TempDir())
	executor := tools.New(pol, j, nil, storage.NewMemoryBackend(), "agent-a", t.TempDir(), nil)

	return New(executor, nil)
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewReturnsUnderlyingMCPServer(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s.MCPServer())
}

func TestHandleShellRunsCommand(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handle("shell")(context.Background(), callRequest("shell", map[string]any{"command": "echo hi"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Contains(t, textOf(result), "hi")
}

func TestHandleShellBlockedByPolicySetsIsError(t *testing.T) {
	j, err := audit.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	pol := policy.New(model.PolicyConfig{DangerousCommandPatterns: []string{"rm -rf"}}, t.TempDir())
	executor := tools.New(pol, j, nil, storage.NewMemoryBackend(), "agent-a", t.TempDir(), nil)
	s := New(executor, nil)

	result, err := s.handle("shell")(context.Background(), callRequest("shell", map[string]any{"command": "rm -rf /"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, textOf(result), "BLOCKED by security policy")
}

func TestHandleFileWriteThenRead(t *testing.T) {
	s := newTestServer(t)
	path := t.TempDir() + "/note.txt"

	writeResult, err := s.handle("file_write")(context.Background(), callRequest("file_write", map[string]any{
		"path": path, "content": "hello",
	}))
	require.NoError(t, err)
	require.False(t, writeResult.IsError)

	readResult, err := s.handle("file_read")(context.Background(), callRequest("file_read", map[string]any{"path": path}))
	require.NoError(t, err)
	require.False(t, readResult.IsError)
	require.Equal(t, "hello", textOf(readResult))
}

func TestHandleUnknownArgumentsDefaultsToEmptyMap(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handle("schedule")(context.Background(), mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{Name: "schedule"},
	})
	require.NoError(t, err)
	require.True(t, result.IsError)
}

func textOf(result *mcplib.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	if tc, ok := result.Content[0].(mcplib.TextContent); ok {
		return tc.Text
	}
	return ""
}
