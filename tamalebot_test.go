package tamalebot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamalebot/tamalebot/internal/agent"
	"github.com/tamalebot/tamalebot/internal/model"
)

type fakeAdapter struct{}

func (fakeAdapter) SendMessage(_ context.Context, _ model.History, _ []model.ToolSchema) (model.LLMResponse, error) {
	return model.LLMResponse{Text: "ok"}, nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("TAMALEBOT_API_KEY", "test-key")
	t.Chdir(t.TempDir())

	app, err := New(
		WithProvider(fakeAdapter{}),
		WithAgentID("agent-a"),
		WithHTTP(false),
		WithMCP(false),
	)
	require.NoError(t, err)
	return app
}

func TestNewFailsWithoutAPIKey(t *testing.T) {
	t.Setenv("TAMALEBOT_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Chdir(t.TempDir())

	_, err := New(WithProvider(fakeAdapter{}))
	require.Error(t, err)
}

func TestNewAssemblesRunnableApp(t *testing.T) {
	app := newTestApp(t)
	require.NotNil(t, app.Loop())
	require.NotNil(t, app.Journal())
	require.Nil(t, app.MCPServer())

	result, _, err := app.Loop().Run(context.Background(), "hi", nil, agent.Hooks{})
	require.NoError(t, err)
	require.Equal(t, "ok", result.Text)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	app := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, app.Run(ctx))
}

func TestCheckpointCommitsJournalEntries(t *testing.T) {
	app := newTestApp(t)

	_, err := app.Journal().Log("agent-a", model.ActionCommand, "echo hi", model.DecisionAllowed, "", nil)
	require.NoError(t, err)

	cp, err := app.Checkpoint(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, cp.BatchRoot)
}

func TestMCPServerEnabledByDefault(t *testing.T) {
	t.Setenv("TAMALEBOT_API_KEY", "test-key")
	t.Chdir(t.TempDir())

	app, err := New(WithProvider(fakeAdapter{}), WithHTTP(false))
	require.NoError(t, err)
	require.NotNil(t, app.MCPServer())
}
