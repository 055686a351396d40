package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pandora-run/pandora/internal/agent"
)

// WriteTool implements file writes within the workspace.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}}
}

// Name returns the tool name.
func (t *WriteTool) Name() string {
	return "write"
}

// Description returns the tool description.
func (t *WriteTool) Description() string {
	return "Write content to a file in the workspace (overwrites by default)."
}

// Schema returns the JSON schema for the tool parameters.
func (t *WriteTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to write (relative to workspace).",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "File contents to write.",
			},
			"append": map[string]interface{}{
				"type":        "boolean",
				"description": "Append instead of overwrite (default: false).",
			},
		},
		"required": []string{"path", "content"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// WritePaths implements agent.WriteAware so the Tool Router can resolve and
// policy-check the target before Execute ever runs.
func (t *WriteTool) WritePaths(params json.RawMessage) ([]string, error) {
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return nil, err
	}
	return []string{resolved}, nil
}

// Execute writes file contents. Non-append writes go through a temp file
// and rename, so a cancelled turn never leaves a half-written file; every
// successful write is attached to the turn as a file artifact, which is how
// a later turn (or a human reviewing the Turn Document) sees what this one
// changed.
func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	_ = ctx
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create directory: %v", err)), nil
	}

	var n int
	if input.Append {
		file, err := os.OpenFile(resolved, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return toolError(fmt.Sprintf("open file: %v", err)), nil
		}
		n, err = file.WriteString(input.Content)
		closeErr := file.Close()
		if err != nil {
			return toolError(fmt.Sprintf("write file: %v", err)), nil
		}
		if closeErr != nil {
			return toolError(fmt.Sprintf("write file: %v", closeErr)), nil
		}
	} else {
		if err := atomicWriteFile(resolved, []byte(input.Content)); err != nil {
			return toolError(fmt.Sprintf("write file: %v", err)), nil
		}
		n = len(input.Content)
	}

	rel := t.resolver.Rel(resolved)
	result := map[string]interface{}{
		"path":          rel,
		"bytes_written": n,
		"append":        input.Append,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolResult{
		Content:   string(payload),
		Artifacts: []agent.Artifact{fileArtifact(rel, []byte(input.Content))},
	}, nil
}

// atomicWriteFile writes to a temp file in the target's directory then
// renames it into place.
func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".write-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// fileArtifact wraps a written file as a turn artifact so the Tool Router's
// sink records what the turn changed.
func fileArtifact(relPath string, data []byte) agent.Artifact {
	return agent.Artifact{
		Type:     "file",
		MimeType: "text/plain",
		Filename: relPath,
		Data:     data,
	}
}
