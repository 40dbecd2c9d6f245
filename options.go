package tamalebot

import (
	"log/slog"

	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/provider"
	"github.com/tamalebot/tamalebot/internal/storage"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger      *slog.Logger
	version     string
	port        int
	agentID     string
	agentName   string
	storage     storage.Backend
	provider    provider.Adapter
	policyCfg   *model.PolicyConfig
	httpEnabled *bool
	mcpEnabled  *bool
}

// WithLogger sets the structured logger for the App. If not set, the
// default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in startup logs and in the
// telemetry service resource.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithPort overrides the HTTP port from config (TAMALEBOT_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithAgentID overrides the agent identifier from config
// (TAMALEBOT_AGENT_ID env var). It scopes the audit journal, the vault's
// derived key, and every mediated action's TAMALEBOT_AGENT_ID environment
// entry (spec §4.5).
func WithAgentID(id string) Option {
	return func(o *resolvedOptions) { o.agentID = id }
}

// WithAgentName overrides the agent's display name, reported by /health.
func WithAgentName(name string) Option {
	return func(o *resolvedOptions) { o.agentName = name }
}

// WithStorage replaces the auto-selected storage.Backend (memory, unless
// TAMALEBOT_STORAGE_URL points at a postgres:// or file:// location).
func WithStorage(backend storage.Backend) Option {
	return func(o *resolvedOptions) { o.storage = backend }
}

// WithProvider replaces the auto-constructed provider.Adapter, bypassing
// the config-driven HTTP adapter entirely. Useful for embedding programs
// that already have an LLM client, or for tests.
func WithProvider(p provider.Adapter) Option {
	return func(o *resolvedOptions) { o.provider = p }
}

// WithPolicyConfig replaces the auto-loaded model.PolicyConfig (spec §3).
// Only the last call wins.
func WithPolicyConfig(cfg model.PolicyConfig) Option {
	return func(o *resolvedOptions) { o.policyCfg = &cfg }
}

// WithHTTP enables or disables the HTTP surface (spec §6). Enabled by
// default.
func WithHTTP(enabled bool) Option {
	return func(o *resolvedOptions) { o.httpEnabled = &enabled }
}

// WithMCP enables or disables the MCP server exposing the tool catalog
// (SPEC_FULL.md §11). Enabled by default.
func WithMCP(enabled bool) Option {
	return func(o *resolvedOptions) { o.mcpEnabled = &enabled }
}
