package llm

//----------------------------------------------------------------
// Message - 對話紀錄中的單筆訊息
//----------------------------------------------------------------

// Message is one record of a stored conversation.
//
// ToolResponses is only set on messages that carry the results of tool calls
// issued by a previous assistant turn. When Role is "tool" the message's own
// Content is just the concatenation of its ToolResponses.
type Message struct {
	Role    string  `json:"role"`              // "user", "assistant", "system", "tool", "function"
	Content *string `json:"content"`           // nil 表示 null
	Name    string  `json:"name,omitempty"`    // sender name or function name (role: function)

	// FunctionCall / ToolCalls 為 assistant 發出的呼叫請求
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`

	// ToolCallID 關聯此訊息所屬的工具調用 ID（僅 role: tool 時有效）
	ToolCallID string `json:"tool_call_id,omitempty"`

	ToolResponses []Message `json:"tool_responses,omitempty"`

	// Context is side-channel data for the next completion call. It is
	// consumed once and never sent upstream.
	Context map[string]any `json:"context,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function" for now
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a tool advertised to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

//----------------------------------------------------------------
// Helper Functions - Message
//----------------------------------------------------------------

// Text returns a pointer to s, for building Content values.
func Text(s string) *string {
	return &s
}

// NewTextMessage 建立純文字訊息
func NewTextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: Text(text),
	}
}

// NewSystemMessage 建立系統訊息
func NewSystemMessage(text string) Message {
	return NewTextMessage(RoleSystem, text)
}

// NewUserMessage 建立使用者訊息
func NewUserMessage(text string) Message {
	return NewTextMessage(RoleUser, text)
}

// NewAssistantMessage 建立助理訊息
func NewAssistantMessage(text string) Message {
	return NewTextMessage(RoleAssistant, text)
}

// NewToolMessage 建立工具結果訊息
func NewToolMessage(toolCallID, text string) Message {
	return Message{
		Role:       RoleTool,
		Content:    Text(text),
		ToolCallID: toolCallID,
	}
}

// GetTextContent returns Content or "" when it is null.
func (m *Message) GetTextContent() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// HasCalls reports whether the message requests a function or tool call.
func (m *Message) HasCalls() bool {
	return m.FunctionCall != nil || len(m.ToolCalls) > 0
}

// Clone returns a copy that shares no slices or maps with m.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = Text(*m.Content)
	}
	if m.FunctionCall != nil {
		fc := *m.FunctionCall
		out.FunctionCall = &fc
	}
	if m.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.ToolResponses != nil {
		out.ToolResponses = make([]Message, len(m.ToolResponses))
		for i, r := range m.ToolResponses {
			out.ToolResponses[i] = r.Clone()
		}
	}
	if m.Context != nil {
		out.Context = make(map[string]any, len(m.Context))
		for k, v := range m.Context {
			out.Context[k] = v
		}
	}
	return out
}
