package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCompletion(t *testing.T) {
	got := Extract(&Completion{Choices: []CompletionChoice{{Text: "one"}, {Index: 1, Text: ""}}})

	require.Len(t, got, 2)
	assert.Equal(t, "one", *got[0].Text)
	require.NotNil(t, got[1].Text)
	assert.Equal(t, "", *got[1].Text)
}

func TestExtractChatCompletion(t *testing.T) {
	call := &ChatMessage{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c1", Type: "function", Function: FunctionCall{Name: "f", Arguments: "{}"}}},
	}
	legacy := &ChatMessage{Role: RoleAssistant, FunctionCall: &FunctionCall{Name: "g", Arguments: "{}"}}

	resp := &ChatCompletion{Choices: []ChatChoice{
		{Message: &ChatMessage{Role: RoleAssistant, Content: Text("hi")}},
		{Message: call},
		{Message: legacy},
		{Message: &ChatMessage{Role: RoleAssistant}},
		{Messages: []map[string]any{{"content": "first"}, {"content": "last"}}},
		{Messages: []map[string]any{{"content": map[string]any{"k": "v"}}}},
		{Messages: []map[string]any{{"role": "user"}}},
		{},
	}}

	got := Extract(resp)
	require.Len(t, got, 8)

	assert.Equal(t, "hi", *got[0].Text)
	assert.Same(t, call, got[1].Message)
	assert.Same(t, legacy, got[2].Message)
	assert.True(t, got[3].IsNull(), "null content extracts as null")
	assert.Equal(t, "last", *got[4].Text)
	assert.JSONEq(t, `{"k":"v"}`, *got[5].Text)
	assert.True(t, got[6].IsNull(), "no content key")
	assert.True(t, got[7].IsNull())
}

func TestExtractEmptyToolCallsStillCountsAsCall(t *testing.T) {
	resp, err := ParseResponse([]byte(`{
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "x", "tool_calls": []}}]
	}`))
	require.NoError(t, err)

	got := Extract(resp)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Message)
	assert.Empty(t, got[0].Message.ToolCalls)
}

func TestExtractEmptyChoices(t *testing.T) {
	assert.Empty(t, Extract(&ChatCompletion{}))
	assert.Empty(t, Extract(&Completion{}))
}
