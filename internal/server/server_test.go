package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamalebot/tamalebot/internal/agent"
	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/auth"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/policy"
	"github.com/tamalebot/tamalebot/internal/storage"
	"github.com/tamalebot/tamalebot/internal/tools"
)

type fakeAdapter struct {
	text string
}

func (f *fakeAdapter) SendMessage(_ context.Context, _ model.History, _ []model.ToolSchema) (model.LLMResponse, error) {
	return model.LLMResponse{Text: f.text, InputTokens: 3, OutputTokens: 2}, nil
}

func newTestServer(t *testing.T, jwtMgr *auth.JWTManager) *Server {
	t.Helper()
	j, err := audit.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	pol := policy.New(model.PolicyConfig{}, t.TempDir())
	executor := tools.New(pol, j, nil, storage.NewMemoryBackend(), "agent-a", t.TempDir(), nil)
	loop := agent.New(&fakeAdapter{text: "hello"}, executor)

	return New(Config{
		Loop:    loop,
		Journal: j,
		JWTMgr:  jwtMgr,
		AgentID: "agent-a",
		Name:    "tamalebot",
		Model:   "claude-test",
		Started: time.Now(),
	})
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthReturnsOK(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "agent-a", resp.AgentID)
}

func TestMessageRequiresText(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s, http.MethodPost, "/message", messageRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageRoundtrip(t *testing.T) {
	s := newTestServer(t, nil)
	rec := doRequest(s, http.MethodPost, "/message", messageRequest{Text: "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "hello", resp.Text)
	require.Equal(t, 1, resp.Stats.Iterations)
	require.Equal(t, 5, resp.Stats.Tokens)
}

func TestClearResetsConversation(t *testing.T) {
	s := newTestServer(t, nil)
	doRequest(s, http.MethodPost, "/message", messageRequest{Text: "hi"})

	rec := doRequest(s, http.MethodPost, "/clear", clearRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp clearResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Cleared)

	stats := doRequest(s, http.MethodGet, "/memory/stats", nil)
	var statsResp memoryStatsResponse
	require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &statsResp))
	require.Equal(t, 0, statsResp.TotalMessages)
}

func TestLogsLimitCappedAt200(t *testing.T) {
	s := newTestServer(t, nil)
	for i := 0; i < 201; i++ {
		_, err := s.handlers.journal.Log("agent-a", model.ActionCommand, "echo hi", model.DecisionAllowed, "", nil)
		require.NoError(t, err)
	}

	rec := doRequest(s, http.MethodGet, "/logs?limit=9999", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp logsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 200, resp.Total)
	require.Len(t, resp.Entries, 200)
}

func TestCORSPreflightRepliesWithWildcardOrigin(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/message", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthMiddlewareRejectsMissingBearerToken(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	s := newTestServer(t, mgr)

	rec := doRequest(s, http.MethodGet, "/memory/stats", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareAllowsHealthWithoutToken(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	s := newTestServer(t, mgr)

	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	mgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)
	s := newTestServer(t, mgr)

	token, _, err := mgr.IssueToken("agent-a")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/memory/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
