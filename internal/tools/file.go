package tools

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"

	"github.com/tamalebot/tamalebot/internal/model"
)

const fileReadCap = 50_000 // bytes (spec §5)

var fileReadSchema = model.ToolSchema{
	Name:        "file_read",
	Description: "Read a file's contents as UTF-8 text.",
	InputSchema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"path": map[string]any{"type": "string"}},
		"required":   []string{"path"},
	},
}

var fileWriteSchema = model.ToolSchema{
	Name:        "file_write",
	Description: "Write content to a file, creating parent directories as needed.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		},
		"required": []string{"path", "content"},
	},
}

type fileReadInput struct {
	Path string `mapstructure:"path"`
}

type fileWriteInput struct {
	Path    string `mapstructure:"path"`
	Content string `mapstructure:"content"`
}

func (e *Executor) execFileRead(raw map[string]any) model.ToolResult {
	var in fileReadInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid file_read arguments: %v", err)
	}
	if in.Path == "" {
		return errorResult("file_read: \"path\" is required")
	}

	return e.mediate(model.ActionFileRead, in.Path, func() (string, bool) {
		data, err := os.ReadFile(in.Path)
		if err != nil {
			return fmt.Sprintf("failed to read %s: %v", in.Path, err), true
		}
		return truncate(string(data), fileReadCap), false
	})
}

func (e *Executor) execFileWrite(raw map[string]any) model.ToolResult {
	var in fileWriteInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid file_write arguments: %v", err)
	}
	if in.Path == "" {
		return errorResult("file_write: \"path\" is required")
	}

	return e.mediate(model.ActionFileWrite, in.Path, func() (string, bool) {
		if err := os.MkdirAll(filepath.Dir(in.Path), 0o755); err != nil {
			return fmt.Sprintf("failed to create parent directories for %s: %v", in.Path, err), true
		}
		if err := os.WriteFile(in.Path, []byte(in.Content), 0o644); err != nil {
			return fmt.Sprintf("failed to write %s: %v", in.Path, err), true
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path), false
	})
}
