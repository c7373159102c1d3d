package llm

// Flatten builds the message sequence submitted to a completion client.
//
// The output starts with system, followed by history in order. Recorded tool
// results are unrolled: a message carrying ToolResponses contributes those
// responses, then (unless its role is "tool", whose content is just the
// responses concatenated) a copy of itself without ToolResponses.
// Neither input is modified.
func Flatten(system, history []Message) []Message {
	out := make([]Message, 0, len(system)+len(history))
	out = append(out, system...)

	for _, m := range history {
		if len(m.ToolResponses) == 0 {
			out = append(out, m)
			continue
		}

		out = append(out, m.ToolResponses...)
		if m.Role != RoleTool {
			parent := m
			parent.ToolResponses = nil
			out = append(out, parent)
		}
	}
	return out
}

// WithoutContext clears the side-channel context of every message in place.
// Callers pass a slice they own (Flatten always returns a fresh one); the
// context maps themselves are left untouched.
func WithoutContext(messages []Message) []Message {
	for i := range messages {
		messages[i].Context = nil
	}
	return messages
}
