package llm

// Extraction is what a single choice reduces to: text, a full chat message
// (when the model asked for a function or tool call), or nothing.
type Extraction struct {
	Text    *string
	Message *ChatMessage
}

// IsNull reports whether the choice carried no usable content.
func (e Extraction) IsNull() bool {
	return e.Text == nil && e.Message == nil
}

// Extract reduces every choice of resp to an Extraction, in order.
//
// Per choice, the first rule that applies wins:
//  1. text completion: the choice text
//  2. message with a function_call or tool_calls: the whole message
//  3. message: its content
//  4. non-empty messages whose last entry has a "content" key: that content
//  5. null
func Extract(resp CompletionResponse) []Extraction {
	switch r := resp.(type) {
	case *Completion:
		out := make([]Extraction, len(r.Choices))
		for i, choice := range r.Choices {
			out[i] = Extraction{Text: Text(choice.Text)}
		}
		return out
	case *ChatCompletion:
		out := make([]Extraction, len(r.Choices))
		for i, choice := range r.Choices {
			out[i] = extractChatChoice(choice)
		}
		return out
	default:
		return []Extraction{}
	}
}

func extractChatChoice(choice ChatChoice) Extraction {
	if msg := choice.Message; msg != nil {
		if msg.FunctionCall != nil || msg.ToolCalls != nil {
			return Extraction{Message: msg}
		}
		return Extraction{Text: msg.Content}
	}

	if n := len(choice.Messages); n > 0 {
		if content, ok := choice.Messages[n-1]["content"]; ok {
			return Extraction{Text: contentText(content)}
		}
	}
	return Extraction{}
}

// contentText renders a nested message's content value. Non-string JSON
// values are re-encoded so nothing is silently dropped.
func contentText(v any) *string {
	switch c := v.(type) {
	case nil:
		return nil
	case string:
		return Text(c)
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return nil
		}
		return Text(string(b))
	}
}
