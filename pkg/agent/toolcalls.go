package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"replygen/pkg/llm"
)

// PendingCalls lists the calls requested by an assistant message. A legacy
// function_call is returned as a tool call with an empty ID.
func PendingCalls(msg llm.Message) []llm.ToolCall {
	calls := make([]llm.ToolCall, 0, len(msg.ToolCalls)+1)
	if msg.FunctionCall != nil {
		calls = append(calls, llm.ToolCall{Type: "function", Function: *msg.FunctionCall})
	}
	return append(calls, msg.ToolCalls...)
}

// ExecuteToolCalls runs every call requested by msg against the tool
// registry. The result is a "tool" message whose ToolResponses hold one
// entry per call, in call order, and whose Content joins their contents.
// Entries answering a tool call are "tool" messages keyed by call id; the
// entry for a legacy function_call is a "function" message keyed by name.
// ok is false when msg requested nothing.
func (a *Agent) ExecuteToolCalls(ctx context.Context, msg llm.Message) (result llm.Message, ok bool) {
	calls := PendingCalls(msg)
	if len(calls) == 0 {
		return llm.Message{}, false
	}

	responses := make([]llm.Message, 0, len(calls))
	texts := make([]string, 0, len(calls))
	for _, tc := range calls {
		text := a.resolveToolCall(ctx, tc)
		resp := llm.NewToolMessage(tc.ID, text)
		if tc.ID == "" {
			// legacy function_call results are answered by name
			resp.Role = llm.RoleFunction
			resp.Name = tc.Function.Name
		}
		responses = append(responses, resp)
		texts = append(texts, text)
	}

	return llm.Message{
		Role:          llm.RoleTool,
		Content:       llm.Text(strings.Join(texts, "\n\n")),
		ToolResponses: responses,
	}, true
}

// resolveToolCall always yields a result text, even if the tool panics.
func (a *Agent) resolveToolCall(ctx context.Context, tc llm.ToolCall) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Tool execution panicked", "tool", tc.Function.Name, "error", r)
			text = "Error: Internal processing panic"
		}
	}()
	return a.handleToolCall(ctx, tc)
}

func (a *Agent) handleToolCall(ctx context.Context, tc llm.ToolCall) string {
	cleanName := strings.TrimPrefix(tc.Function.Name, "functions.")

	if a.toolReg == nil {
		return fmt.Sprintf("Error: Unknown tool '%s'", tc.Function.Name)
	}
	tool, ok := a.toolReg.Get(cleanName)
	if !ok {
		slog.ErrorContext(ctx, "Unknown tool call", "name", tc.Function.Name, "clean_name", cleanName)
		return fmt.Sprintf("Error: Unknown tool '%s'", tc.Function.Name)
	}

	args := map[string]any{}
	if strings.TrimSpace(tc.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			slog.ErrorContext(ctx, "Failed to parse tool args", "error", err)
			return fmt.Sprintf("Error: Failed to parse tool arguments: %v", err)
		}
	}

	slog.InfoContext(ctx, "Executing tool", "name", cleanName, "args", args)
	res, err := tool.Execute(ctx, args)
	if err != nil {
		slog.ErrorContext(ctx, "Tool execution error", "name", cleanName, "error", err)
		return fmt.Sprintf("Error: Tool execution failed: %v", err)
	}

	if text := res.Text(); text != "" {
		return text
	}
	return "(No output)"
}
