package web

import (
	"fmt"

	"replygen/pkg/channels"
	"replygen/pkg/config"
	"replygen/pkg/gateway"
	"replygen/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

// WebFactory 負責建立 Web Channels
type WebFactory struct{}

// Create 實作 ChannelFactory
func (f *WebFactory) Create(rawConfig jsoniter.RawMessage, sessions *llm.SessionManager, system *config.SystemConfig) (gateway.Channel, error) {
	// 設定預設 Port
	pCfg := WebConfig{Port: DefaultPort}

	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &pCfg); err != nil {
			return nil, fmt.Errorf("failed to parse web config: %w", err)
		}
	}

	return NewWebChannel(pCfg, sessions), nil
}

func init() {
	channels.RegisterChannel("web", &WebFactory{})
}
