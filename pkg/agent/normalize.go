package agent

import (
	"maps"
	"strings"
)

// maxNameLength is the longest function name upstream APIs accept.
const maxNameLength = 64

// NameNormalizer rewrites a function or tool name so the executing side can
// accept it.
type NameNormalizer interface {
	Normalize(name string) string
}

// NameNormalizerFunc adapts a plain function to NameNormalizer.
type NameNormalizerFunc func(string) string

func (f NameNormalizerFunc) Normalize(name string) string {
	return f(name)
}

// SanitizeName replaces every character outside [a-zA-Z0-9_-] with '_' and
// cuts the result to 64 characters.
func SanitizeName(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
		if sb.Len() == maxNameLength {
			break
		}
	}
	return sb.String()
}

// normalizeCallNames returns a copy of msg in which function_call.name and
// every tool_calls[i].function.name went through n. Nothing reachable from
// msg is modified.
func normalizeCallNames(msg map[string]any, n NameNormalizer) map[string]any {
	out := maps.Clone(msg)

	if fc, ok := msg["function_call"].(map[string]any); ok {
		out["function_call"] = withNormalizedName(fc, n)
	}

	if calls, ok := msg["tool_calls"].([]any); ok {
		newCalls := make([]any, len(calls))
		for i, c := range calls {
			call, ok := c.(map[string]any)
			if !ok {
				newCalls[i] = c
				continue
			}
			cp := maps.Clone(call)
			if fn, ok := call["function"].(map[string]any); ok {
				cp["function"] = withNormalizedName(fn, n)
			}
			newCalls[i] = cp
		}
		out["tool_calls"] = newCalls
	}

	return out
}

func withNormalizedName(m map[string]any, n NameNormalizer) map[string]any {
	cp := maps.Clone(m)
	if name, ok := m["name"].(string); ok {
		cp["name"] = n.Normalize(name)
	}
	return cp
}
