// Package autoload registers every built-in provider factory.
package autoload

import (
	_ "replygen/pkg/llm/gemini"
	_ "replygen/pkg/llm/ollama"
	_ "replygen/pkg/llm/openailm"
)
