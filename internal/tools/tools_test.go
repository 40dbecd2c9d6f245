package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/policy"
	"github.com/tamalebot/tamalebot/internal/storage"
	"github.com/tamalebot/tamalebot/internal/vault"
)

func newTestExecutor(t *testing.T, cfg model.PolicyConfig) *Executor {
	t.Helper()
	j, err := audit.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	backend := storage.NewMemoryBackend()
	v := vault.New(backend, j, "agent-a", "test-source")
	pol := policy.New(cfg, t.TempDir())

	return New(pol, j, v, backend, "agent-a", t.TempDir(), nil)
}

func TestExecuteUnknownToolIsError(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "nonexistent", nil)
	require.True(t, result.IsError)
}

func TestExecuteShellRunsCommand(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "shell", map[string]any{"command": "echo hello"})
	require.False(t, result.IsError)
	require.Contains(t, result.Output, "hello")
}

func TestExecuteShellBlockedByPolicy(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{DangerousCommandPatterns: []string{"rm -rf"}})
	result := e.Execute(context.Background(), "shell", map[string]any{"command": "rm -rf /"})
	require.True(t, result.IsError)
	require.Contains(t, result.Output, "BLOCKED by security policy")
}

func TestExecuteShellMissingCommandIsError(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "shell", map[string]any{})
	require.True(t, result.IsError)
}

func TestExecuteShellNonZeroExit(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "shell", map[string]any{"command": "exit 3"})
	require.True(t, result.IsError)
	require.Contains(t, result.Output, "code 3")
}

func TestExecuteShellOutputExceedingBufferCapIsKilled(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "shell", map[string]any{
		"command": "yes | head -c 2000000",
	})
	require.True(t, result.IsError)
	require.Contains(t, result.Output, "buffer")
}

func TestExecuteFileWriteThenRead(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	path := filepath.Join(t.TempDir(), "sub", "note.txt")

	writeResult := e.Execute(context.Background(), "file_write", map[string]any{"path": path, "content": "hello world"})
	require.False(t, writeResult.IsError)

	readResult := e.Execute(context.Background(), "file_read", map[string]any{"path": path})
	require.False(t, readResult.IsError)
	require.Equal(t, "hello world", readResult.Output)
}

func TestExecuteFileReadBlockedPath(t *testing.T) {
	sensitive := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(sensitive, []byte("SECRET=1"), 0o600))

	e := newTestExecutor(t, model.PolicyConfig{BlockedReadPaths: []string{sensitive}})
	result := e.Execute(context.Background(), "file_read", map[string]any{"path": sensitive})
	require.True(t, result.IsError)
	require.Contains(t, result.Output, "BLOCKED by security policy")
}

func TestExecuteFileReadMissingFile(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "file_read", map[string]any{"path": "/nonexistent/path/file.txt"})
	require.True(t, result.IsError)
}

func TestExecuteVaultSetAndMaskedGet(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})

	setResult := e.Execute(context.Background(), "vault", map[string]any{
		"action": "set", "name": "API_TOKEN", "value": "sk-abcdefghijklmnop", "type": "api-key",
	})
	require.False(t, setResult.IsError)

	getResult := e.Execute(context.Background(), "vault", map[string]any{"action": "get", "name": "API_TOKEN"})
	require.False(t, getResult.IsError)
	require.Contains(t, getResult.Output, "sk-a")
	require.NotContains(t, getResult.Output, "sk-abcdefghijklmnop")
}

func TestExecuteVaultGetMissingIsError(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "vault", map[string]any{"action": "get", "name": "MISSING"})
	require.True(t, result.IsError)
}

func TestExecuteScheduleCreateInvalidCron(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	result := e.Execute(context.Background(), "schedule", map[string]any{
		"action": "create", "name": "daily", "cron": "not a cron", "task": "do something",
	})
	require.True(t, result.IsError)
}

func TestExecuteScheduleCreateListPauseDelete(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})

	create := e.Execute(context.Background(), "schedule", map[string]any{
		"action": "create", "name": "daily backup", "cron": "0 3 * * *", "task": "run backup",
	})
	require.False(t, create.IsError)

	list := e.Execute(context.Background(), "schedule", map[string]any{"action": "list"})
	require.False(t, list.IsError)
	require.Contains(t, list.Output, "daily backup")

	// create reports "created schedule <id> (<name>)".
	id := strings.Fields(create.Output)[2]

	pause := e.Execute(context.Background(), "schedule", map[string]any{"action": "pause", "id": id})
	require.False(t, pause.IsError)
	list = e.Execute(context.Background(), "schedule", map[string]any{"action": "list"})
	require.Contains(t, list.Output, "[paused]")

	del := e.Execute(context.Background(), "schedule", map[string]any{"action": "delete", "id": id})
	require.False(t, del.IsError)
	list = e.Execute(context.Background(), "schedule", map[string]any{"action": "list"})
	require.Equal(t, "no schedules", list.Output)
}

func TestCleanHTMLStripsScriptStyleAndTags(t *testing.T) {
	html := `<html><head><style>body{color:red}</style></head><body><script>alert(1)</script><p>Hello   World</p></body></html>`
	out := cleanHTML(html)
	require.Equal(t, "Hello World", out)
}

func TestCatalogReturnsAllEightTools(t *testing.T) {
	e := newTestExecutor(t, model.PolicyConfig{})
	require.Len(t, e.Catalog(), 8)
}
