package llm

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRegex = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Instantiate replaces {key} placeholders in template with values from
// context. Unknown keys are left untouched.
func Instantiate(template string, context map[string]any) string {
	if len(context) == 0 {
		return template
	}
	return placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		v, ok := context[key]
		if !ok {
			return match
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	})
}

// ApplyContext returns messages with Instantiate applied to every non-null
// content. The input slice is not modified.
func ApplyContext(messages []Message, context map[string]any) []Message {
	if len(context) == 0 {
		return messages
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		if m.Content != nil {
			m.Content = Text(Instantiate(*m.Content, context))
		}
		out[i] = m
	}
	return out
}

// RenderPrompt turns a message sequence into a single prompt for text
// completion endpoints: one "role: content" line per non-null message,
// ending with an open "assistant:" turn.
func RenderPrompt(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if m.Content == nil {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, *m.Content)
	}
	sb.WriteString("assistant:")
	return sb.String()
}
