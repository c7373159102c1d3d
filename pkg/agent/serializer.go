package agent

import (
	"fmt"

	"replygen/pkg/llm"
)

// Serializer turns a chat message into the plain mapping stored as a reply.
type Serializer interface {
	ToMapping(msg *llm.ChatMessage) (map[string]any, error)
}

// JSONSerializer round-trips the message through its JSON form.
type JSONSerializer struct{}

func (JSONSerializer) ToMapping(msg *llm.ChatMessage) (map[string]any, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return out, nil
}
