package agent

import (
	"replygen/pkg/llm"
)

// Reply is the normalized outcome of a completion: text, a message mapping,
// or null (the zero value).
type Reply struct {
	text    *string
	mapping map[string]any
}

// TextReply builds a text reply.
func TextReply(s string) Reply {
	return Reply{text: llm.Text(s)}
}

// MappingReply builds a mapping reply. A nil mapping is a null reply.
func MappingReply(m map[string]any) Reply {
	return Reply{mapping: m}
}

// IsNull reports whether the reply carries nothing.
func (r Reply) IsNull() bool {
	return r.text == nil && r.mapping == nil
}

// Text returns the text of a text reply.
func (r Reply) Text() (string, bool) {
	if r.text == nil {
		return "", false
	}
	return *r.text, true
}

// Mapping returns the mapping of a mapping reply.
func (r Reply) Mapping() (map[string]any, bool) {
	return r.mapping, r.mapping != nil
}

// MarshalJSON encodes the reply as a JSON string, object or null.
func (r Reply) MarshalJSON() ([]byte, error) {
	switch {
	case r.text != nil:
		return json.Marshal(*r.text)
	case r.mapping != nil:
		return json.Marshal(r.mapping)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Reply) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*r = Reply{}
	case string:
		*r = TextReply(t)
	case map[string]any:
		*r = MappingReply(t)
	default:
		*r = TextReply(string(data))
	}
	return nil
}

// ToMessage converts the reply into an assistant message for the
// conversation log.
func (r Reply) ToMessage() (llm.Message, error) {
	if r.mapping == nil {
		msg := llm.Message{Role: llm.RoleAssistant}
		if r.text != nil {
			msg.Content = llm.Text(*r.text)
		}
		return msg, nil
	}

	data, err := json.Marshal(r.mapping)
	if err != nil {
		return llm.Message{}, err
	}
	var msg llm.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return llm.Message{}, err
	}
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	return msg, nil
}
