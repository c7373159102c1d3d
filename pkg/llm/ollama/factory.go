package ollama

import (
	"log/slog"

	"replygen/pkg/config"
	"replygen/pkg/llm"
)

// OllamaFactory handles creation of Ollama Clients
type OllamaFactory struct{}

// Create implements ProviderFactory
func (f *OllamaFactory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.CompletionClient, error) {
	var clients []llm.CompletionClient

	baseURL := cfg.BaseURL
	if baseURL == "" && sys != nil {
		baseURL = sys.OllamaDefaultURL
	}
	settings := llm.SettingsFromConfig(cfg, sys)

	for _, model := range cfg.Models {
		client, err := NewOllamaClient(model, baseURL, settings)
		if err != nil {
			slog.Error("Failed to create Ollama client", "model", model, "error", err)
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("ollama", &OllamaFactory{})
}
