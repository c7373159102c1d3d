package api

import (
	"context"
	"strings"
)

// Tool is a capability the model can invoke through a function or tool call.
// Parameters returns the JSON Schema object advertised to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	// Execute performs the actual tool logic using the decoded call arguments.
	Execute(ctx context.Context, args map[string]any) (*ToolResult, error)
}

// ToolResult encapsulates the outcome of a tool execution.
type ToolResult struct {
	Content []ContentBlock `json:"content"`           // Ordered blocks of result data
	Details map[string]any `json:"details,omitempty"` // Arbitrary technical metadata
}

// ContentBlock is an atomic data unit within a ToolResult.
type ContentBlock struct {
	Type string `json:"type"`           // Data format, currently always "text"
	Text string `json:"text,omitempty"` // String content
}

// Text joins every text block of the result.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolRegistry defines the interface for managing and accessing tools.
type ToolRegistry interface {
	Register(tool Tool)
	Unregister(name string)
	Get(name string) (Tool, bool)
	GetAll() []Tool
}
