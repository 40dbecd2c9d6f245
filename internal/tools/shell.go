package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/tamalebot/tamalebot/internal/model"
)

const (
	shellDefaultTimeout = 30 * time.Second
	shellMaxTimeout     = 120 * time.Second
	shellBufferCap      = 1 << 20 // 1 MiB (spec §5, "Memory caps")
	shellOutputCap      = 10_000  // bytes (spec §5)
)

var shellSchema = model.ToolSchema{
	Name:        "shell",
	Description: "Run a shell command in the agent's working directory.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":    map[string]any{"type": "string"},
			"timeout_ms": map[string]any{"type": "integer"},
		},
		"required": []string{"command"},
	},
}

type shellInput struct {
	Command   string `mapstructure:"command"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

func (e *Executor) execShell(ctx context.Context, raw map[string]any) model.ToolResult {
	var in shellInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid shell arguments: %v", err)
	}
	if in.Command == "" {
		return errorResult("shell: \"command\" is required")
	}

	timeout := shellDefaultTimeout
	if in.TimeoutMs > 0 {
		timeout = time.Duration(in.TimeoutMs) * time.Millisecond
	}
	if timeout > shellMaxTimeout {
		timeout = shellMaxTimeout
	}

	return e.mediate(model.ActionCommand, in.Command, func() (string, bool) {
		return e.runShell(ctx, in.Command, timeout)
	})
}

func (e *Executor) runShell(ctx context.Context, command string, timeout time.Duration) (string, bool) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = e.WorkDir
	cmd.Env = append(cmd.Environ(), "TAMALEBOT_AGENT_ID="+e.AgentID)

	var stdout, stderr bytes.Buffer
	stdoutWriter := &limitedWriter{buf: &stdout, max: shellBufferCap, cancel: cancel}
	stderrWriter := &limitedWriter{buf: &stderr, max: shellBufferCap, cancel: cancel}
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	err := cmd.Run()

	combined := stdout.String()
	if stderr.Len() > 0 {
		combined += "\n--- stderr ---\n" + stderr.String()
	}
	combined = truncate(combined, shellOutputCap)

	if stdoutWriter.exceeded || stderrWriter.exceeded {
		return fmt.Sprintf("command output exceeded %d byte buffer; process killed\n%s", shellBufferCap, combined), true
	}
	if runCtx.Err() != nil {
		return fmt.Sprintf("command timed out after %s\n%s", timeout, combined), true
	}
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return fmt.Sprintf("command exited with code %d\n%s", exitCode, combined), true
	}
	return combined, false
}

// limitedWriter caps the number of bytes buffered. Once the cap would be
// exceeded, it cancels the subprocess's context — killing it — and reports
// the breach via exceeded, rather than silently discarding output and
// letting the subprocess run to completion (spec §5, §8).
type limitedWriter struct {
	buf      *bytes.Buffer
	max      int
	cancel   context.CancelFunc
	exceeded bool
}

var errBufferCapExceeded = errors.New("tools: output buffer cap exceeded")

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		w.markExceeded()
		return 0, errBufferCapExceeded
	}
	if remaining > len(p) {
		remaining = len(p)
	}
	w.buf.Write(p[:remaining])
	if remaining < len(p) {
		w.markExceeded()
		return remaining, errBufferCapExceeded
	}
	return len(p), nil
}

func (w *limitedWriter) markExceeded() {
	w.exceeded = true
	w.cancel()
}
