package openailm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"replygen/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is a wrapper around the official OpenAI Go SDK
type Client struct {
	client   *openai.Client
	provider string
	model    string
	settings llm.ClientSettings
}

// NewClient creates a new OpenAI client. extra options are appended after
// the key and base URL (tests use them to disable SDK retries).
func NewClient(provider, apiKey, model, baseURL string, settings llm.ClientSettings, extra ...option.RequestOption) (*Client, error) {
	if model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	if settings.APIType == "" {
		settings.APIType = llm.APITypeChat
	}
	if settings.APIType != llm.APITypeChat && settings.APIType != llm.APITypeCompletion {
		return nil, fmt.Errorf("openai: unknown api_type %q", settings.APIType)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		settings: settings,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	return strings.Contains(msg, "overloaded")
}

// Create implements llm.CompletionClient.
func (c *Client) Create(ctx context.Context, req llm.CreateRequest) (llm.CompletionResponse, error) {
	messages := c.settings.PrepareMessages(req)

	var cacheKey string
	if req.Cache != nil {
		key, err := llm.CacheKey(c.provider, c.model, c.settings.APIType, messages, req.Tools)
		if err != nil {
			slog.WarnContext(ctx, "Cache disabled for request", "provider", c.provider, "error", err)
		} else {
			cacheKey = key
		}
		if resp, ok := llm.LookupCached(req.Cache, cacheKey); ok {
			slog.DebugContext(ctx, "Cache hit", "provider", c.provider, "model", c.model)
			return resp, nil
		}
	}

	callCtx, cancel := c.settings.WithTimeout(ctx)
	defer cancel()

	var raw string
	var err error
	if c.settings.APIType == llm.APITypeCompletion {
		raw, err = c.complete(callCtx, messages)
	} else {
		raw, err = c.chat(callCtx, messages, req.Tools)
	}
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", c.provider, err)
	}

	debugger := llm.NewResponseDebugger(ctx, c.provider, c.settings.Debug)
	debugger.Write([]byte(raw))
	debugger.Close()

	resp, err := llm.ParseResponse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.provider, err)
	}

	llm.LogUsage(c.model, resp.TokenUsage())
	llm.StoreCached(req.Cache, cacheKey, resp)
	return resp, nil
}

func (c *Client) chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
	}

	// Messages are sent in our own wire shape so that null content,
	// function_call and tool_calls round-trip exactly.
	opts := []option.RequestOption{
		option.WithJSONSet("messages", toWireMessages(messages)),
	}
	if len(tools) > 0 {
		opts = append(opts, option.WithJSONSet("tools", toWireTools(tools)))
	}
	opts = append(opts, c.samplingOptions("max_completion_tokens")...)

	resp, err := c.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", err
	}
	return rawOrMarshal(resp.RawJSON(), resp)
}

func (c *Client) complete(ctx context.Context, messages []llm.Message) (string, error) {
	params := openai.CompletionNewParams{
		Model: openai.CompletionNewParamsModel(c.model),
		Prompt: openai.CompletionNewParamsPromptUnion{
			OfString: openai.String(llm.RenderPrompt(messages)),
		},
	}

	resp, err := c.client.Completions.New(ctx, params, c.samplingOptions("max_tokens")...)
	if err != nil {
		return "", err
	}
	return rawOrMarshal(resp.RawJSON(), resp)
}

func (c *Client) samplingOptions(maxTokensField string) []option.RequestOption {
	var opts []option.RequestOption
	if t, ok := c.settings.FloatOption("temperature"); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}
	if p, ok := c.settings.FloatOption("top_p"); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}
	if maxTok, ok := c.settings.FloatOption("max_tokens"); ok {
		opts = append(opts, option.WithJSONSet(maxTokensField, int(maxTok)))
	}
	return opts
}

func rawOrMarshal(raw string, v any) (string, error) {
	if raw != "" {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode response: %w", err)
	}
	return string(b), nil
}

//----------------------------------------------------------------
// Wire conversion
//----------------------------------------------------------------

type wireMessage struct {
	Role         string            `json:"role"`
	Content      *string           `json:"content"`
	Name         string            `json:"name,omitempty"`
	FunctionCall *llm.FunctionCall `json:"function_call,omitempty"`
	ToolCalls    []llm.ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID   string            `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function llm.ToolSpec `json:"function"`
}

// toWireMessages drops the fields that never go upstream (tool_responses,
// context).
func toWireMessages(messages []llm.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, wireMessage{
			Role:         m.Role,
			Content:      m.Content,
			Name:         m.Name,
			FunctionCall: m.FunctionCall,
			ToolCalls:    m.ToolCalls,
			ToolCallID:   m.ToolCallID,
		})
	}
	return out
}

func toWireTools(tools []llm.ToolSpec) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{Type: "function", Function: t})
	}
	return out
}
