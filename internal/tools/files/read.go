package files

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pandora-run/pandora/internal/agent"
)

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

// ReadTool reads workspace files into model context. Because a read result
// becomes prompt material for every later phase, the tool is opinionated
// about what it hands back: binary content is described rather than dumped,
// credential-shaped substrings are masked, and every result carries the
// window's digest so a claim citing the file can be pinned to the exact
// content that was read.
type ReadTool struct {
	resolver   Resolver
	maxReadLen int
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200000
	}
	return &ReadTool{
		resolver:   Resolver{Root: cfg.Workspace},
		maxReadLen: limit,
	}
}

// Name returns the tool name.
func (t *ReadTool) Name() string {
	return "read"
}

// Description returns the tool description.
func (t *ReadTool) Description() string {
	return "Read a file from the workspace with optional offset and byte limit."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ReadTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file (relative to workspace).",
			},
			"offset": map[string]interface{}{
				"type":        "integer",
				"description": "Byte offset to start reading from (default: 0).",
				"minimum":     0,
			},
			"max_bytes": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum bytes to read (capped by tool default).",
				"minimum":     0,
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute reads a window of the file and prepares it for model context.
func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Path) == "" {
		return toolError("path is required"), nil
	}
	if input.Offset < 0 {
		return toolError("offset must be >= 0"), nil
	}

	resolved, err := t.resolver.Resolve(input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	limit := t.maxReadLen
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}

	window, size, err := readWindow(resolved, input.Offset, limit)
	if err != nil {
		return toolError(err.Error()), nil
	}

	rel := t.resolver.Rel(resolved)
	result := map[string]interface{}{
		"path":      rel,
		"offset":    input.Offset,
		"bytes":     len(window),
		"size":      size,
		"truncated": input.Offset+int64(len(window)) < size,
		"sha256":    contentDigest(window),
	}

	// Binary files are described, not dumped: raw bytes in a prompt are
	// useless to the phases and blow the context budget.
	if isBinary(window) {
		result["binary"] = true
		result["content"] = fmt.Sprintf("(binary file, %d bytes; not included)", size)
	} else {
		content, redacted := redactSecrets(string(window))
		result["content"] = content
		if redacted > 0 {
			result["secrets_redacted"] = redacted
		}
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// readWindow returns up to limit bytes starting at offset, plus the file's
// total size.
func readWindow(path string, offset int64, limit int) ([]byte, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, 0, fmt.Errorf("path is a directory")
	}
	size := info.Size()
	if offset > size {
		return nil, size, nil
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return nil, size, fmt.Errorf("seek file: %w", err)
		}
	}

	window, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return nil, size, fmt.Errorf("read file: %w", err)
	}
	return window, size, nil
}

// contentDigest returns the hex sha256 of the read window, the same digest
// shape the Tool Router stamps on args, so toolresults and evidence entries
// can reference the exact bytes read.
func contentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// isBinary applies the null-byte heuristic over the first KiB.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}
