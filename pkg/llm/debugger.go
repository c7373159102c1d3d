package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ResponseDebugger appends raw provider responses to a debug log.
// It centralizes the logic for directory creation, file naming, and safe writing.
type ResponseDebugger struct {
	file    *os.File
	enabled bool
}

// NewResponseDebugger creates a new debugger instance.
// It attempts to open the debug file immediately if enabled.
//
// Parameters:
//   - ctx: Context containing the potential DebugDirContextKey
//   - provider: Name of the LLM provider (e.g., "gemini", "openai")
//   - enabled: Whether debugging is globally enabled
func NewResponseDebugger(ctx context.Context, provider string, enabled bool) *ResponseDebugger {
	return newResponseDebugger(ctx, "debug", provider, enabled)
}

func newResponseDebugger(ctx context.Context, root, provider string, enabled bool) *ResponseDebugger {
	if !enabled {
		return &ResponseDebugger{enabled: false}
	}

	debugDir := filepath.Join(root, "responses", provider)

	// If a debug id is in context, nest under it
	if val := ctx.Value(DebugDirContextKey); val != nil {
		if dirStr, ok := val.(string); ok && dirStr != "" {
			debugDir = filepath.Join(root, "responses", dirStr, provider)
		}
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Error("Failed to create debug directory", "dir", debugDir, "error", err)
		return &ResponseDebugger{enabled: false}
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(debugDir, fmt.Sprintf("%s.log", timestamp))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Error("Failed to open debug file", "file", filename, "error", err)
		return &ResponseDebugger{enabled: false}
	}

	slog.Debug("Debug mode ON", "provider", provider, "file", filename)
	return &ResponseDebugger{
		file:    f,
		enabled: true,
	}
}

// Write appends raw data followed by a newline.
func (d *ResponseDebugger) Write(data []byte) {
	if !d.enabled || d.file == nil {
		return
	}
	if _, err := d.file.Write(data); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// WriteJSON marshals v and appends it.
func (d *ResponseDebugger) WriteJSON(v any) {
	if !d.enabled || d.file == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal debug payload", "error", err)
		return
	}
	d.Write(b)
}

// Close closes the debug file handle.
func (d *ResponseDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
