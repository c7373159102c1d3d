package llm

import (
	"context"
	"time"

	"replygen/pkg/config"
)

// ProviderGroupConfig 定義一組模型的配置
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	APIKeys []string       `json:"api_keys,omitempty"`
	Models  []string       `json:"models"`
	BaseURL string         `json:"base_url,omitempty"`
	// APIType selects the endpoint: "chat" (default) or "completion"
	APIType string         `json:"api_type,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ProviderFactory 定義建立 LLM Client 的工廠介面
type ProviderFactory interface {
	// Create 根據配置建立一組 atomic clients
	Create(groupConfig ProviderGroupConfig, systemConfig *config.SystemConfig) ([]CompletionClient, error)
}

// 全域 Provider 註冊表
var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider 註冊一個 Provider Factory
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory 取得指定名稱的 Provider Factory
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}

// API types selectable per provider group.
const (
	APITypeChat       = "chat"
	APITypeCompletion = "completion"
)

// ClientSettings are the provider-independent knobs every client honors.
type ClientSettings struct {
	APIType                string
	Timeout                time.Duration
	AllowFormatStrTemplate bool
	Debug                  bool
	Options                map[string]any
}

// SettingsFromConfig merges a provider group with the system config.
func SettingsFromConfig(group ProviderGroupConfig, sys *config.SystemConfig) ClientSettings {
	if sys == nil {
		sys = config.DefaultSystemConfig()
	}
	apiType := group.APIType
	if apiType == "" {
		apiType = APITypeChat
	}
	return ClientSettings{
		APIType:                apiType,
		Timeout:                time.Duration(sys.LLMTimeoutMs) * time.Millisecond,
		AllowFormatStrTemplate: sys.AllowFormatStrTemplate,
		Debug:                  sys.DebugChunks,
		Options:                group.Options,
	}
}

// PrepareMessages applies the request context to the messages when
// templating is enabled.
func (s ClientSettings) PrepareMessages(req CreateRequest) []Message {
	if !s.AllowFormatStrTemplate {
		return req.Messages
	}
	return ApplyContext(req.Messages, req.Context)
}

// WithTimeout bounds ctx by the configured timeout, if any.
func (s ClientSettings) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// FloatOption reads a numeric option. JSON numbers decode as float64.
func (s ClientSettings) FloatOption(name string) (float64, bool) {
	switch v := s.Options[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
