package channels

import (
	"log/slog"

	"replygen/pkg/config"
	"replygen/pkg/gateway"
	"replygen/pkg/llm"

	jsoniter "github.com/json-iterator/go"
)

// LoadFromConfig resolves a factory for every configured channel and returns
// the channels that could be built. Unknown or failing channels are logged
// and skipped.
func LoadFromConfig(configs map[string]jsoniter.RawMessage, sessions *llm.SessionManager, system *config.SystemConfig) []gateway.Channel {
	var out []gateway.Channel
	for name, rawConfig := range configs {
		factory, ok := GetChannelFactory(name)
		if !ok {
			slog.Warn("Unknown channel type", "name", name)
			continue
		}

		channel, err := factory.Create(rawConfig, sessions, system)
		if err != nil {
			slog.Error("Failed to create channel", "name", name, "error", err)
			continue
		}

		// If Create returns nil (e.g., certain conditions not met but not an error), skip
		if channel == nil {
			continue
		}

		out = append(out, channel)
		slog.Info("Channel loaded", "name", name)
	}
	return out
}
