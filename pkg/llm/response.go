package llm

import (
	"fmt"

	"github.com/tidwall/gjson"
)

//----------------------------------------------------------------
// CompletionResponse - 上游回應（兩種變體）
//----------------------------------------------------------------

// CompletionResponse is the result of a completion call. It is either a
// *Completion (legacy text endpoint) or a *ChatCompletion.
type CompletionResponse interface {
	// Object returns the wire "object" value of the variant.
	Object() string
	// ModelName returns the model that produced the response.
	ModelName() string
	// TokenUsage returns usage statistics, if the provider reported them.
	TokenUsage() *LLMUsage

	isCompletionResponse()
}

// Completion is a plain text completion.
type Completion struct {
	ID      string             `json:"id,omitempty"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *LLMUsage          `json:"usage,omitempty"`
}

// CompletionChoice is one candidate of a Completion.
type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChatCompletion is a chat completion.
type ChatCompletion struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *LLMUsage    `json:"usage,omitempty"`
}

// ChatChoice is one candidate of a ChatCompletion.
//
// Message is the usual payload. Messages is the nested group-chat shape some
// proxies return instead; its entries are kept as raw mappings.
type ChatChoice struct {
	Index        int              `json:"index"`
	Message      *ChatMessage     `json:"message,omitempty"`
	Messages     []map[string]any `json:"messages,omitempty"`
	FinishReason string           `json:"finish_reason,omitempty"`
}

// ChatMessage is the message of a chat choice.
//
// FunctionCall and ToolCalls keep the null/non-null distinction of the wire
// payload: an empty but present "tool_calls" decodes to a non-nil slice.
type ChatMessage struct {
	Role         string        `json:"role"`
	Content      *string       `json:"content"`
	Refusal      *string       `json:"refusal,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
}

func (c *Completion) Object() string        { return ObjectTextCompletion }
func (c *Completion) ModelName() string     { return c.Model }
func (c *Completion) TokenUsage() *LLMUsage { return c.Usage }
func (*Completion) isCompletionResponse()   {}

func (c *ChatCompletion) Object() string        { return ObjectChatCompletion }
func (c *ChatCompletion) ModelName() string     { return c.Model }
func (c *ChatCompletion) TokenUsage() *LLMUsage { return c.Usage }
func (*ChatCompletion) isCompletionResponse()   {}

//----------------------------------------------------------------
// Wire encoding
//----------------------------------------------------------------

// ParseResponse decodes an OpenAI-shaped response body. The variant is picked
// from the "object" field; anything that is not a text completion is read as
// a chat completion.
func ParseResponse(raw []byte) (CompletionResponse, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("invalid response JSON")
	}

	if gjson.GetBytes(raw, "object").String() == ObjectTextCompletion {
		var c Completion
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to decode completion: %w", err)
		}
		return &c, nil
	}

	var c ChatCompletion
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to decode chat completion: %w", err)
	}
	return &c, nil
}

// EncodeResponse is the inverse of ParseResponse.
func EncodeResponse(resp CompletionResponse) ([]byte, error) {
	switch r := resp.(type) {
	case *Completion:
		return json.Marshal(struct {
			Object string `json:"object"`
			*Completion
		}{ObjectTextCompletion, r})
	case *ChatCompletion:
		return json.Marshal(struct {
			Object string `json:"object"`
			*ChatCompletion
		}{ObjectChatCompletion, r})
	default:
		return nil, fmt.Errorf("unsupported response type %T", resp)
	}
}
