package openailm

import (
	"log/slog"

	"replygen/pkg/config"
	"replygen/pkg/llm"
)

// OpenAIFactory handles creation of OpenAI Clients
type OpenAIFactory struct{}

// Create implements ProviderFactory. Keys are rotated across models.
func (f *OpenAIFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.CompletionClient, error) {
	var clients []llm.CompletionClient

	settings := llm.SettingsFromConfig(cfg, sys)

	for i, model := range cfg.Models {
		apiKey := ""
		if len(cfg.APIKeys) > 0 {
			apiKey = cfg.APIKeys[i%len(cfg.APIKeys)]
		}

		client, err := NewClient("openai", apiKey, model, cfg.BaseURL, settings)
		if err != nil {
			slog.Error("Failed to create OpenAI client", "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &OpenAIFactory{})
}
