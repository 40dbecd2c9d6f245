// Package mcp exposes the mediated tool catalog over the Model Context
// Protocol, so MCP-compatible clients can drive the same shell, file,
// vault, ssh_exec, git and schedule tools the native agent loop uses,
// through the same policy and audit mediation (spec §4.5).
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tamalebot/tamalebot/internal/tools"
)

// Server wraps the MCP server with the mediated tool executor.
type Server struct {
	mcpServer *mcpserver.MCPServer
	executor  *tools.Executor
	logger    *slog.Logger
}

// New creates and configures an MCP server exposing every tool in
// executor.Catalog() under its native name.
func New(executor *tools.Executor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{executor: executor, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"tamalebot",
		"0.1.0",
		mcpserver.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcplib.NewTool("shell",
			mcplib.WithDescription("Run a shell command and capture its combined stdout/stderr."),
			mcplib.WithString("command", mcplib.Description("Command line to execute"), mcplib.Required()),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handle("shell"),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("file_read",
			mcplib.WithDescription("Read a text file from disk."),
			mcplib.WithString("path", mcplib.Description("Path to read"), mcplib.Required()),
			mcplib.WithReadOnlyHintAnnotation(true),
		),
		s.handle("file_read"),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("file_write",
			mcplib.WithDescription("Write content to a file on disk, creating parent directories as needed."),
			mcplib.WithString("path", mcplib.Description("Path to write"), mcplib.Required()),
			mcplib.WithString("content", mcplib.Description("Content to write"), mcplib.Required()),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handle("file_write"),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("web_browse",
			mcplib.WithDescription("Fetch a URL over HTTP(S) and return its text content with markup stripped."),
			mcplib.WithString("url", mcplib.Description("URL to fetch"), mcplib.Required()),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handle("web_browse"),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("vault",
			mcplib.WithDescription("Manage encrypted credentials: set, get (masked), delete, list, generate_ssh_key."),
			mcplib.WithString("action", mcplib.Description("set|get|delete|list|generate_ssh_key"), mcplib.Required()),
			mcplib.WithString("name", mcplib.Description("Credential name, e.g. API_TOKEN")),
			mcplib.WithString("value", mcplib.Description("Credential value, required for action=set")),
			mcplib.WithString("type", mcplib.Description("Credential type label, e.g. api-key")),
		),
		s.handle("vault"),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("ssh_exec",
			mcplib.WithDescription("Run a command on a remote host over SSH using a vault-stored private key."),
			mcplib.WithString("host", mcplib.Description("Remote host name or address"), mcplib.Required()),
			mcplib.WithString("command", mcplib.Description("Command to run remotely"), mcplib.Required()),
			mcplib.WithString("key_name", mcplib.Description("Vault credential name holding the private key (defaults to SSH_KEY)")),
			mcplib.WithNumber("port", mcplib.Description("SSH port"), mcplib.DefaultNumber(22)),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handle("ssh_exec"),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("git",
			mcplib.WithDescription("Operate on a git repository: clone, pull, push, status, diff, commit, log, checkout."),
			mcplib.WithString("action", mcplib.Description("clone|pull|push|status|diff|commit|log|checkout"), mcplib.Required()),
			mcplib.WithString("repo", mcplib.Description("Local repository path")),
			mcplib.WithString("url", mcplib.Description("Remote URL, required for action=clone")),
			mcplib.WithString("branch", mcplib.Description("Branch name, required for action=checkout")),
			mcplib.WithString("message", mcplib.Description("Commit message, required for action=commit")),
			mcplib.WithString("key_name", mcplib.Description("Vault credential name holding a deploy key")),
			mcplib.WithOpenWorldHintAnnotation(true),
		),
		s.handle("git"),
	)

	s.mcpServer.AddTool(
		mcplib.NewTool("schedule",
			mcplib.WithDescription("Manage scheduled future work: create, list, delete, pause, resume."),
			mcplib.WithString("action", mcplib.Description("create|list|delete|pause|resume"), mcplib.Required()),
			mcplib.WithString("id", mcplib.Description("Schedule ID, required for delete/pause/resume")),
			mcplib.WithString("name", mcplib.Description("Schedule name, required for action=create")),
			mcplib.WithString("cron", mcplib.Description("5-field cron expression, required for action=create")),
			mcplib.WithString("task", mcplib.Description("Task description, required for action=create")),
			mcplib.WithIdempotentHintAnnotation(true),
		),
		s.handle("schedule"),
	)
}

// handle returns an MCP tool handler that forwards the raw arguments to
// the named tool through the executor's mediation path and translates
// the resulting model.ToolResult into an MCP CallToolResult.
func (s *Server) handle(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		args, ok := request.Params.Arguments.(map[string]any)
		if !ok {
			args = map[string]any{}
		}

		result := s.executor.Execute(ctx, name, args)
		if result.IsError {
			return errorResult(result.Output), nil
		}
		return &mcplib.CallToolResult{
			Content: []mcplib.Content{
				mcplib.TextContent{Type: "text", Text: result.Output},
			},
		}, nil
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
