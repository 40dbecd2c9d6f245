// Package tools implements the fixed tool catalog and the uniform
// mediation flow every invocation passes through: coerce input, evaluate
// policy, audit, then execute or block (spec §4.5).
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/policy"
	"github.com/tamalebot/tamalebot/internal/storage"
	"github.com/tamalebot/tamalebot/internal/vault"
)

// Executor holds the shared dependencies every tool handler mediates
// through: the policy engine, the audit journal, an optional vault (for
// vault/ssh_exec/git deploy-key access), and a storage backend (for the
// schedule store).
type Executor struct {
	Policy  *policy.Engine
	Journal *audit.Journal
	Vault   *vault.Vault // nil disables vault-backed tools (vault, ssh_exec key lookup, git deploy keys)
	Storage storage.Backend
	AgentID string
	WorkDir string
	Logger  *slog.Logger
}

// New constructs an Executor. logger may be nil, in which case
// slog.Default() is used.
func New(pol *policy.Engine, journal *audit.Journal, v *vault.Vault, backend storage.Backend, agentID, workDir string, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Policy: pol, Journal: journal, Vault: v, Storage: backend, AgentID: agentID, WorkDir: workDir, Logger: logger}
}

// Catalog returns the fixed tool schema set forwarded to the LLM (spec
// §4.5).
func (e *Executor) Catalog() []model.ToolSchema {
	return []model.ToolSchema{
		shellSchema, fileReadSchema, fileWriteSchema, webBrowseSchema,
		vaultSchema, sshExecSchema, gitSchema, scheduleSchema,
	}
}

// Execute runs the named tool against input, mediating through policy and
// audit exactly once regardless of outcome (spec §4.5, steps 1-5).
func (e *Executor) Execute(ctx context.Context, name string, input map[string]any) model.ToolResult {
	switch name {
	case "shell":
		return e.execShell(ctx, input)
	case "file_read":
		return e.execFileRead(input)
	case "file_write":
		return e.execFileWrite(input)
	case "web_browse":
		return e.execWebBrowse(ctx, input)
	case "vault":
		return e.execVault(input)
	case "ssh_exec":
		return e.execSSHExec(ctx, input)
	case "git":
		return e.execGit(ctx, input)
	case "schedule":
		return e.execSchedule(ctx, input)
	default:
		return model.ToolResult{Output: fmt.Sprintf("unknown tool: %s", name), IsError: true}
	}
}

// mediate checks the per-agent request rate limit, evaluates policy for
// (actionType, target), always audits the decision, and either returns the
// blocked result or runs do (spec §4.5, steps 2-5).
func (e *Executor) mediate(actionType model.ActionType, target string, do func() (string, bool)) model.ToolResult {
	decision := model.PolicyDecision{Allowed: false, Reason: "request rate limit exceeded"}
	if e.Policy.AllowRate(e.AgentID) {
		decision = e.Policy.Evaluate(actionType, target)
	}

	auditDecision := model.DecisionAllowed
	if !decision.Allowed {
		auditDecision = model.DecisionBlocked
	}
	if _, err := e.Journal.Log(e.AgentID, actionType, target, auditDecision, decision.Reason, nil); err != nil {
		e.Logger.Error("tools: audit log failed", "actionType", actionType, "error", err)
	}

	if !decision.Allowed {
		return model.ToolResult{Output: fmt.Sprintf("BLOCKED by security policy: %s", decision.Reason), IsError: true}
	}

	output, isError := do()
	return model.ToolResult{Output: output, IsError: isError}
}

// errorResult is a convenience constructor for an input-coercion failure,
// which the spec treats the same as any other tool error (spec §4.5, step
// 1: "missing required inputs cause an error result").
func errorResult(format string, args ...any) model.ToolResult {
	return model.ToolResult{Output: fmt.Sprintf(format, args...), IsError: true}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
