package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tamalebot/tamalebot/internal/agent"
	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/model"
)

const defaultChatID = "default"

// conversation pairs a canonical history with the lock that serializes
// turns submitted against it (spec §5: "within a single conversation,
// turns must execute in submission order and one at a time").
type conversation struct {
	mu      sync.Mutex
	history model.History
}

type handlersDeps struct {
	Loop    *agent.Loop
	Journal *audit.Journal
	AgentID string
	Name    string
	Model   string
	Started time.Time
	Logger  *slog.Logger
}

// Handlers holds the state backing the HTTP surface: the agent loop, the
// audit journal for /logs, and the in-memory conversation map.
type Handlers struct {
	loop    *agent.Loop
	journal *audit.Journal
	agentID string
	name    string
	model   string
	started time.Time
	logger  *slog.Logger

	mu            sync.Mutex
	conversations map[string]*conversation
}

func newHandlers(deps handlersDeps) *Handlers {
	return &Handlers{
		loop:          deps.Loop,
		journal:       deps.Journal,
		agentID:       deps.AgentID,
		name:          deps.Name,
		model:         deps.Model,
		started:       deps.Started,
		logger:        deps.Logger,
		conversations: make(map[string]*conversation),
	}
}

func (h *Handlers) conversationFor(chatID string) *conversation {
	if chatID == "" {
		chatID = defaultChatID
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conversations[chatID]
	if !ok {
		c = &conversation{}
		h.conversations[chatID] = c
	}
	return c
}

type healthResponse struct {
	Status    string `json:"status"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Model     string `json:"model"`
	Uptime    string `json:"uptime"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:    "ok",
		AgentID:   h.agentID,
		AgentName: h.name,
		Model:     h.model,
		Uptime:    time.Since(h.started).String(),
	})
}

type messageRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chatId,omitempty"`
}

type messageStats struct {
	ToolCalls    int `json:"toolCalls"`
	Iterations   int `json:"iterations"`
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	Tokens       int `json:"tokens"`
}

type messageResponse struct {
	Text  string       `json:"text"`
	Stats messageStats `json:"stats"`
}

func (h *Handlers) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed request body")
		return
	}
	if req.Text == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "\"text\" is required")
		return
	}

	conv := h.conversationFor(req.ChatID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	result, history, err := h.loop.Run(r.Context(), req.Text, conv.history, agent.Hooks{})
	if err != nil {
		h.logger.Error("server: agent loop failed", "error", err, "chat_id", req.ChatID)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "agent turn failed")
		return
	}
	conv.history = history

	writeJSON(w, r, http.StatusOK, messageResponse{
		Text: result.Text,
		Stats: messageStats{
			ToolCalls:    result.ToolCallCount,
			Iterations:   result.Iterations,
			InputTokens:  result.TotalInputTokens,
			OutputTokens: result.TotalOutputTokens,
			Tokens:       result.TotalInputTokens + result.TotalOutputTokens,
		},
	})
}

type clearRequest struct {
	ChatID string `json:"chatId,omitempty"`
}

type clearResponse struct {
	Cleared bool   `json:"cleared"`
	ChatID  string `json:"chatId"`
}

func (h *Handlers) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	_ = decodeJSON(r, &req)
	chatID := req.ChatID
	if chatID == "" {
		chatID = defaultChatID
	}

	conv := h.conversationFor(chatID)
	conv.mu.Lock()
	conv.history = nil
	conv.mu.Unlock()

	writeJSON(w, r, http.StatusOK, clearResponse{Cleared: true, ChatID: chatID})
}

const (
	defaultLogsLimit = 50
	maxLogsLimit     = 200
)

type logsResponse struct {
	Entries []model.AuditEntry `json:"entries"`
	Total   int                `json:"total"`
}

func (h *Handlers) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLogsLimit {
		limit = maxLogsLimit
	}

	var decision model.Decision
	switch r.URL.Query().Get("decision") {
	case "allowed":
		decision = model.DecisionAllowed
	case "blocked":
		decision = model.DecisionBlocked
	}

	entries, err := h.journal.GetEntries(model.AuditFilter{Limit: limit, Decision: decision})
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read audit log")
		return
	}

	writeJSON(w, r, http.StatusOK, logsResponse{Entries: entries, Total: len(entries)})
}

type memoryStatsResponse struct {
	ConversationCount int `json:"conversationCount"`
	TotalMessages     int `json:"totalMessages"`
}

func (h *Handlers) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, c := range h.conversations {
		c.mu.Lock()
		total += len(c.history)
		c.mu.Unlock()
	}

	writeJSON(w, r, http.StatusOK, memoryStatsResponse{
		ConversationCount: len(h.conversations),
		TotalMessages:     total,
	})
}
