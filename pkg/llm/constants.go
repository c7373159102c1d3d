package llm

// Role constants for Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
	RoleFunction  = "function"
)

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop      = "stop"       // Normal completion
	StopReasonLength    = "length"     // Output truncated due to token limit
	StopReasonToolCalls = "tool_calls" // Model requested tool calls
)

// Wire "object" values used to tell the two response variants apart.
const (
	ObjectTextCompletion = "text_completion"
	ObjectChatCompletion = "chat.completion"
)

// DebugDirContextKey carries the per-request debug id used for log grouping
// and debug dump directories.
const DebugDirContextKey = "llm_debug_dir"
