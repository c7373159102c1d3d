package agent

import (
	"context"
	"errors"
	"testing"

	"replygen/pkg/llm"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	resp llm.CompletionResponse
	err  error
	reqs []llm.CreateRequest
}

func (f *fakeClient) Create(ctx context.Context, req llm.CreateRequest) (llm.CompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func (f *fakeClient) IsTransientError(error) bool { return false }
func (f *fakeClient) Provider() string            { return "fake" }

func chatResponse(msg *llm.ChatMessage) *llm.ChatCompletion {
	return &llm.ChatCompletion{
		Model:   "test-model",
		Choices: []llm.ChatChoice{{Index: 0, Message: msg, FinishReason: llm.StopReasonStop}},
	}
}

func TestGenerateReplyWithoutClient(t *testing.T) {
	histories := map[string][]llm.Message{
		"nil":   nil,
		"empty": {},
		"user":  {llm.NewUserMessage("hello")},
		"tool responses": {{
			Role:          llm.RoleTool,
			Content:       llm.Text("42"),
			ToolResponses: []llm.Message{llm.NewToolMessage("call_1", "42")},
		}},
	}

	a := NewAgent("assistant", nil)
	for name, history := range histories {
		t.Run(name, func(t *testing.T) {
			handled, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: history})
			require.NoError(t, err)
			assert.False(t, handled)
			assert.True(t, reply.IsNull())
		})
	}
}

func TestGenerateReplyText(t *testing.T) {
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{Role: llm.RoleAssistant, Content: llm.Text("hi")})}
	a := NewAgent("assistant", client)

	handled, reply, err := a.GenerateReply(context.Background(), ReplyRequest{
		Messages: []llm.Message{llm.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	assert.True(t, handled)

	text, ok := reply.Text()
	require.True(t, ok)
	assert.Equal(t, "hi", text)
}

func TestGenerateReplyCompletionVariant(t *testing.T) {
	client := &fakeClient{resp: &llm.Completion{
		Model:   "text-model",
		Choices: []llm.CompletionChoice{{Text: "a"}, {Text: "b"}},
	}}
	a := NewAgent("assistant", client)

	handled, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
	require.NoError(t, err)
	assert.True(t, handled)

	text, ok := reply.Text()
	require.True(t, ok)
	assert.Equal(t, "a", text)
}

func TestGenerateReplyRequestClientOverridesDefault(t *testing.T) {
	def := &fakeClient{resp: chatResponse(&llm.ChatMessage{Content: llm.Text("default")})}
	override := &fakeClient{resp: chatResponse(&llm.ChatMessage{Content: llm.Text("override")})}
	a := NewAgent("assistant", def)

	_, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{}, Client: override})
	require.NoError(t, err)

	text, _ := reply.Text()
	assert.Equal(t, "override", text)
	assert.Empty(t, def.reqs)
	assert.Len(t, override.reqs, 1)
}

func TestGenerateReplyNormalizesCallNames(t *testing.T) {
	msg := &llm.ChatMessage{
		Role:    llm.RoleAssistant,
		Content: llm.Text("calling tool.x now"),
		FunctionCall: &llm.FunctionCall{
			Name:      "lookup.weather city",
			Arguments: `{"city":"a.b"}`,
		},
		ToolCalls: []llm.ToolCall{
			{ID: "call.1", Type: "function", Function: llm.FunctionCall{Name: "ns/search", Arguments: "{}"}},
			{ID: "call.2", Type: "function", Function: llm.FunctionCall{Name: "ok_name-1", Arguments: "{}"}},
		},
	}
	client := &fakeClient{resp: chatResponse(msg)}
	a := NewAgent("assistant", client)

	handled, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{llm.NewUserMessage("weather?")}})
	require.NoError(t, err)
	require.True(t, handled)

	got, ok := reply.Mapping()
	require.True(t, ok)

	want := map[string]any{
		"role":    "assistant",
		"content": "calling tool.x now",
		"function_call": map[string]any{
			"name":      "lookup_weather_city",
			"arguments": `{"city":"a.b"}`,
		},
		"tool_calls": []any{
			map[string]any{
				"id":   "call.1",
				"type": "function",
				"function": map[string]any{
					"name":      "ns_search",
					"arguments": "{}",
				},
			},
			map[string]any{
				"id":   "call.2",
				"type": "function",
				"function": map[string]any{
					"name":      "ok_name-1",
					"arguments": "{}",
				},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}

	// The response object handed back by the client is untouched.
	assert.Equal(t, "lookup.weather city", msg.FunctionCall.Name)
	assert.Equal(t, "ns/search", msg.ToolCalls[0].Function.Name)
}

type fixedSerializer struct {
	mapping map[string]any
}

func (s fixedSerializer) ToMapping(*llm.ChatMessage) (map[string]any, error) {
	return s.mapping, nil
}

func TestGenerateReplyDoesNotMutateSerializedValue(t *testing.T) {
	source := map[string]any{
		"role":          "assistant",
		"content":       nil,
		"function_call": map[string]any{"name": "a.b", "arguments": "{}"},
		"tool_calls": []any{
			map[string]any{"id": "1", "function": map[string]any{"name": "c d", "arguments": "{}"}},
		},
	}
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{FunctionCall: &llm.FunctionCall{Name: "a.b"}})}
	a := NewAgent("assistant", client)
	a.SetSerializer(fixedSerializer{mapping: source})

	_, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
	require.NoError(t, err)

	got, _ := reply.Mapping()
	assert.Equal(t, "a_b", got["function_call"].(map[string]any)["name"])
	assert.Equal(t, "c_d", got["tool_calls"].([]any)[0].(map[string]any)["function"].(map[string]any)["name"])

	assert.Equal(t, "a.b", source["function_call"].(map[string]any)["name"])
	assert.Equal(t, "c d", source["tool_calls"].([]any)[0].(map[string]any)["function"].(map[string]any)["name"])
}

func TestGenerateReplyCustomNormalizer(t *testing.T) {
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{FunctionCall: &llm.FunctionCall{Name: "Lookup"}})}
	a := NewAgent("assistant", client)
	a.SetNameNormalizer(NameNormalizerFunc(func(s string) string { return "x_" + s }))

	_, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
	require.NoError(t, err)

	got, _ := reply.Mapping()
	assert.Equal(t, "x_Lookup", got["function_call"].(map[string]any)["name"])
}

func TestGenerateReplyFlattensHistory(t *testing.T) {
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{Content: llm.Text("done")})}
	a := NewAgent("assistant", client)
	a.SetSystemMessage("be brief")

	call := llm.ToolCall{ID: "call_1", Type: "function", Function: llm.FunctionCall{Name: "f", Arguments: "{}"}}
	history := []llm.Message{
		llm.NewUserMessage("q"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
		{
			Role:          llm.RoleTool,
			Content:       llm.Text("r"),
			ToolResponses: []llm.Message{llm.NewToolMessage("call_1", "r")},
		},
	}

	_, _, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: history})
	require.NoError(t, err)
	require.Len(t, client.reqs, 1)

	want := []llm.Message{
		llm.NewSystemMessage("be brief"),
		llm.NewUserMessage("q"),
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{call}},
		llm.NewToolMessage("call_1", "r"),
	}
	if diff := cmp.Diff(want, client.reqs[0].Messages); diff != "" {
		t.Errorf("flattened messages mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateReplyContextFromExplicitHistory(t *testing.T) {
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{Content: llm.Text("ok")})}
	a := NewAgent("assistant", client)

	last := llm.NewUserMessage("hi {name}")
	last.Context = map[string]any{"name": "Ada"}
	history := []llm.Message{last}

	_, _, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: history})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "Ada"}, client.reqs[0].Context)
	sent := client.reqs[0].Messages
	assert.Nil(t, sent[len(sent)-1].Context, "context is not submitted with the messages")
	assert.Equal(t, map[string]any{"name": "Ada"}, history[0].Context, "explicit history must not be mutated")

	_, _, err = a.GenerateReply(context.Background(), ReplyRequest{
		Messages: history,
		Context:  map[string]any{"name": "Bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Bob"}, client.reqs[1].Context)
}

func TestGenerateReplyUsesStore(t *testing.T) {
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{Content: llm.Text("ok")})}
	store := llm.NewSessionManager("")
	a := NewAgent("assistant", client)
	a.SetStore(store)

	msg := llm.NewUserMessage("hello")
	msg.Context = map[string]any{"k": "v"}
	require.NoError(t, store.Append("web_1", msg))

	handled, _, err := a.GenerateReply(context.Background(), ReplyRequest{Sender: "web_1"})
	require.NoError(t, err)
	assert.True(t, handled)

	require.Len(t, client.reqs, 1)
	assert.Equal(t, map[string]any{"k": "v"}, client.reqs[0].Context)
	require.Len(t, client.reqs[0].Messages, 1)
	assert.Equal(t, "hello", client.reqs[0].Messages[0].GetTextContent())
	assert.Nil(t, client.reqs[0].Messages[0].Context, "context is not submitted with the messages")

	// The context is consumed once.
	_, _, err = a.GenerateReply(context.Background(), ReplyRequest{Sender: "web_1"})
	require.NoError(t, err)
	assert.Nil(t, client.reqs[1].Context)
}

func TestGenerateReplyUpstreamError(t *testing.T) {
	upstream := errors.New("boom")
	a := NewAgent("assistant", &fakeClient{err: upstream})

	handled, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
	assert.False(t, handled)
	assert.True(t, reply.IsNull())
}

func TestGenerateReplyNullReplies(t *testing.T) {
	tests := []struct {
		name string
		resp llm.CompletionResponse
	}{
		{"no choices", &llm.ChatCompletion{Choices: []llm.ChatChoice{}}},
		{"null content", chatResponse(&llm.ChatMessage{Role: llm.RoleAssistant})},
		{"empty nested messages", &llm.ChatCompletion{Choices: []llm.ChatChoice{{Messages: []map[string]any{}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAgent("assistant", &fakeClient{resp: tt.resp})
			handled, reply, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
			require.NoError(t, err)
			assert.True(t, handled)
			assert.True(t, reply.IsNull())
		})
	}
}

func TestGenerateReplyAdvertisesTools(t *testing.T) {
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{Content: llm.Text("ok")})}
	a := NewAgent("assistant", client)
	a.RegisterTool(&echoTool{name: "b_tool"}, &echoTool{name: "a_tool"})

	_, _, err := a.GenerateReply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
	require.NoError(t, err)

	specs := client.reqs[0].Tools
	require.Len(t, specs, 2)
	assert.Equal(t, "a_tool", specs[0].Name)
	assert.Equal(t, "b_tool", specs[1].Name)
}

func TestReplyChain(t *testing.T) {
	client := &fakeClient{resp: chatResponse(&llm.ChatMessage{Content: llm.Text("from llm")})}
	a := NewAgent("assistant", client)

	var calls []string
	a.RegisterReply(func(ctx context.Context, a *Agent, req ReplyRequest) (bool, Reply, error) {
		calls = append(calls, "passthrough")
		return false, Reply{}, nil
	})

	reply, err := a.Reply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
	require.NoError(t, err)
	text, _ := reply.Text()
	assert.Equal(t, "from llm", text)
	assert.Equal(t, []string{"passthrough"}, calls)

	a.RegisterReply(func(ctx context.Context, a *Agent, req ReplyRequest) (bool, Reply, error) {
		return true, TextReply("canned"), nil
	})
	reply, err = a.Reply(context.Background(), ReplyRequest{Messages: []llm.Message{}})
	require.NoError(t, err)
	text, _ = reply.Text()
	assert.Equal(t, "canned", text)
	assert.Len(t, client.reqs, 1)
}

func TestReplyChainWithoutClient(t *testing.T) {
	a := NewAgent("assistant", nil)
	reply, err := a.Reply(context.Background(), ReplyRequest{Messages: []llm.Message{llm.NewUserMessage("x")}})
	require.NoError(t, err)
	assert.True(t, reply.IsNull())
}
