package agent

import (
	"context"
	"errors"
	"testing"

	"replygen/pkg/api"
	"replygen/pkg/llm"
	"replygen/pkg/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct {
	name  string
	err   error
	panic bool
}

func (t *echoTool) Name() string               { return t.name }
func (t *echoTool) Description() string        { return "echo the text argument" }
func (t *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (t *echoTool) Execute(ctx context.Context, args map[string]any) (*api.ToolResult, error) {
	if t.panic {
		panic("kaboom")
	}
	if t.err != nil {
		return nil, t.err
	}
	text, _ := args["text"].(string)
	return tools.TextResult(text), nil
}

func TestExecuteToolCalls(t *testing.T) {
	a := NewAgent("assistant", nil)
	a.RegisterTool(
		&echoTool{name: "echo"},
		&echoTool{name: "broken", err: errors.New("disk full")},
		&echoTool{name: "panicky", panic: true},
	)

	msg := llm.Message{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: "c1", Type: "function", Function: llm.FunctionCall{Name: "echo", Arguments: `{"text":"hello"}`}},
			{ID: "c2", Type: "function", Function: llm.FunctionCall{Name: "functions.echo", Arguments: `{"text":"prefixed"}`}},
			{ID: "c3", Type: "function", Function: llm.FunctionCall{Name: "missing", Arguments: "{}"}},
			{ID: "c4", Type: "function", Function: llm.FunctionCall{Name: "broken", Arguments: "{}"}},
			{ID: "c5", Type: "function", Function: llm.FunctionCall{Name: "panicky", Arguments: "{}"}},
			{ID: "c6", Type: "function", Function: llm.FunctionCall{Name: "echo", Arguments: "not json"}},
		},
	}

	result, ok := a.ExecuteToolCalls(context.Background(), msg)
	require.True(t, ok)
	assert.Equal(t, llm.RoleTool, result.Role)
	require.Len(t, result.ToolResponses, 6)

	wantIDs := []string{"c1", "c2", "c3", "c4", "c5", "c6"}
	for i, r := range result.ToolResponses {
		assert.Equal(t, llm.RoleTool, r.Role)
		assert.Equal(t, wantIDs[i], r.ToolCallID)
	}

	assert.Equal(t, "hello", result.ToolResponses[0].GetTextContent())
	assert.Equal(t, "prefixed", result.ToolResponses[1].GetTextContent())
	assert.Equal(t, "Error: Unknown tool 'missing'", result.ToolResponses[2].GetTextContent())
	assert.Contains(t, result.ToolResponses[3].GetTextContent(), "disk full")
	assert.Equal(t, "Error: Internal processing panic", result.ToolResponses[4].GetTextContent())
	assert.Contains(t, result.ToolResponses[5].GetTextContent(), "Failed to parse tool arguments")

	assert.Contains(t, result.GetTextContent(), "hello\n\nprefixed")

	// Flattening the result yields exactly the per-call responses.
	flat := llm.Flatten(nil, []llm.Message{result})
	assert.Equal(t, result.ToolResponses, flat)
}

func TestExecuteToolCallsLegacyFunctionCall(t *testing.T) {
	a := NewAgent("assistant", nil)
	a.RegisterTool(&echoTool{name: "echo"})

	result, ok := a.ExecuteToolCalls(context.Background(), llm.Message{
		Role:         llm.RoleAssistant,
		FunctionCall: &llm.FunctionCall{Name: "echo", Arguments: `{"text":"legacy"}`},
	})
	require.True(t, ok)
	require.Len(t, result.ToolResponses, 1)
	assert.Equal(t, llm.RoleFunction, result.ToolResponses[0].Role)
	assert.Equal(t, "echo", result.ToolResponses[0].Name)
	assert.Empty(t, result.ToolResponses[0].ToolCallID)
	assert.Equal(t, "legacy", result.GetTextContent())

	flat := llm.Flatten(nil, []llm.Message{result})
	require.Len(t, flat, 1)
	assert.Equal(t, llm.RoleFunction, flat[0].Role)
}

func TestExecuteToolCallsNothingRequested(t *testing.T) {
	a := NewAgent("assistant", nil)
	_, ok := a.ExecuteToolCalls(context.Background(), llm.NewAssistantMessage("plain"))
	assert.False(t, ok)
}

func TestExecuteToolCallsWithoutRegistry(t *testing.T) {
	a := NewAgent("assistant", nil)
	result, ok := a.ExecuteToolCalls(context.Background(), llm.Message{
		Role:      llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{{ID: "c1", Function: llm.FunctionCall{Name: "echo"}}},
	})
	require.True(t, ok)
	assert.Equal(t, "Error: Unknown tool 'echo'", result.GetTextContent())
}
