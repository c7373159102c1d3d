package telegram

import (
	"fmt"

	"replygen/pkg/channels"
	"replygen/pkg/config"
	"replygen/pkg/gateway"
	"replygen/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TelegramFactory 負責建立 Telegram Channels
type TelegramFactory struct{}

// Create 實作 ChannelFactory
func (f *TelegramFactory) Create(rawConfig jsoniter.RawMessage, sessions *llm.SessionManager, system *config.SystemConfig) (gateway.Channel, error) {
	var tgCfg TelegramConfig
	if err := json.Unmarshal(rawConfig, &tgCfg); err != nil {
		return nil, fmt.Errorf("failed to parse telegram config: %w", err)
	}

	if tgCfg.Token == "" {
		return nil, fmt.Errorf("missing telegram token")
	}

	limit := config.DefaultSystemConfig().TelegramMessageLimit
	if system != nil && system.TelegramMessageLimit > 0 {
		limit = system.TelegramMessageLimit
	}

	return NewTelegramChannel(tgCfg, limit)
}

func init() {
	channels.RegisterChannel("telegram", &TelegramFactory{})
}
