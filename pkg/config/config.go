package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like provider choices and the agent persona.
type Config struct {
	// Channels contains a map of channel identifiers (e.g., "telegram", "web")
	// to their specific configuration payloads in raw JSON format.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// LLM holds the provider group list in raw JSON; each entry is decoded
	// by the matching provider factory.
	LLM jsoniter.RawMessage `json:"llm"`
	// SystemPrompt is the global persona/instruction string sent to the AI
	// as the initial system message in every conversation.
	SystemPrompt string `json:"system_prompt"`
	// AgentName is the name the agent replies under.
	AgentName string `json:"agent_name"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// reliability and technical behavior of the reply engine.
type SystemConfig struct {
	// MaxRetries is the number of times a fallback client will attempt to
	// recover from a transient provider error before moving on.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for a single
	// completion request.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// OllamaDefaultURL is the fallback endpoint used when connecting
	// to a local Ollama instance if no specific URL is provided.
	OllamaDefaultURL string `json:"ollama_default_url"`
	// CacheDir holds cached completion responses. Empty keeps the cache in memory.
	CacheDir string `json:"cache_dir"`
	// DisableCache turns response caching off entirely.
	DisableCache bool `json:"disable_cache"`
	// HistoryDir is where per-sender conversation logs are persisted.
	// Empty keeps histories in memory only.
	HistoryDir string `json:"history_dir"`
	// MaxToolTurns bounds how many tool-call rounds a single user message
	// may trigger before the handler gives up.
	MaxToolTurns int `json:"max_tool_turns"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message. Longer replies are split.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// DebugChunks enables saving every raw provider response to the /debug
	// folder for inspection and troubleshooting purposes.
	DebugChunks bool `json:"debug_chunks"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// EnableTools globally toggles the tool calling (agentic) functionality.
	EnableTools bool `json:"enable_tools"`
	// AllowFormatStrTemplate lets {key} placeholders in message content be
	// filled from the message context before each call.
	AllowFormatStrTemplate bool `json:"allow_format_str_template"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:           3,
		RetryDelayMs:         500,
		LLMTimeoutMs:         600000,
		OllamaDefaultURL:     "http://localhost:11434",
		HistoryDir:           "data/history",
		MaxToolTurns:         5,
		TelegramMessageLimit: 4000,
		LogLevel:             "info",
		EnableTools:          true,
	}
}

// Load reads and parses the application config at appPath and the system
// config at sysPath. A missing app config is an error; a missing or broken
// system config falls back to defaults.
func Load(appPath, sysPath string) (*Config, *SystemConfig, error) {
	cfg, err := LoadAppConfig(appPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, LoadSystemConfig(sysPath), nil
}

// LoadAppConfig reads and validates the application config.
func LoadAppConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file '%s' not found. please create one", path)
	}

	appFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return DefaultSystemConfig() // Parse failed, use defaults
	}

	return cfg
}
