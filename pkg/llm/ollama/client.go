package ollama

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"replygen/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client   *api.Client
	model    string
	settings llm.ClientSettings
}

// NewOllamaClient creates an Ollama client
func NewOllamaClient(model string, baseURL string, settings llm.ClientSettings) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("ollama: base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// Timeouts are applied per call through the context, not the transport.
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	httpClient := &http.Client{
		Transport: &JSONFixingRoundTripper{Proxied: transport},
	}

	slog.Info("Ollama client initialized", "model", model, "base_url", baseURL, "api_type", settings.APIType)

	return &OllamaClient{
		client:   api.NewClient(u, httpClient),
		model:    model,
		settings: settings,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama"
}

// Create implements llm.CompletionClient. Chat requests map to /api/chat,
// completion requests to /api/generate.
func (o *OllamaClient) Create(ctx context.Context, req llm.CreateRequest) (llm.CompletionResponse, error) {
	messages := o.settings.PrepareMessages(req)

	var cacheKey string
	if req.Cache != nil {
		key, err := llm.CacheKey(o.Provider(), o.model, o.settings.APIType, messages, req.Tools)
		if err != nil {
			slog.WarnContext(ctx, "Cache disabled for request", "provider", o.Provider(), "error", err)
		} else {
			cacheKey = key
		}
		if resp, ok := llm.LookupCached(req.Cache, cacheKey); ok {
			slog.DebugContext(ctx, "Cache hit", "provider", o.Provider(), "model", o.model)
			return resp, nil
		}
	}

	callCtx, cancel := o.settings.WithTimeout(ctx)
	defer cancel()

	debugger := llm.NewResponseDebugger(ctx, o.Provider(), o.settings.Debug)
	defer debugger.Close()

	var resp llm.CompletionResponse
	var err error
	if o.settings.APIType == llm.APITypeCompletion {
		resp, err = o.generate(callCtx, messages, debugger)
	} else {
		resp, err = o.chat(callCtx, messages, req.Tools, debugger)
	}
	if err != nil {
		slog.ErrorContext(ctx, "Ollama request failed", "model", o.model, "error", err)
		return nil, fmt.Errorf("ollama completion failed: %w", err)
	}

	llm.LogUsage(o.model, resp.TokenUsage())
	llm.StoreCached(req.Cache, cacheKey, resp)
	return resp, nil
}

func (o *OllamaClient) chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec, debugger *llm.ResponseDebugger) (llm.CompletionResponse, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: convertMessages(messages),
		Options:  o.settings.Options,
		Tools:    convertTools(tools),
		Stream:   &stream,
	}

	var final api.ChatResponse
	var content strings.Builder
	var calls []api.ToolCall
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		debugger.WriteJSON(resp)
		content.WriteString(resp.Message.Content)
		calls = append(calls, resp.Message.ToolCalls...)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	final.Message.Content = content.String()
	final.Message.ToolCalls = calls
	return chatResponseToCompletion(o.model, final), nil
}

func (o *OllamaClient) generate(ctx context.Context, messages []llm.Message, debugger *llm.ResponseDebugger) (llm.CompletionResponse, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  llm.RenderPrompt(messages),
		Options: o.settings.Options,
		Stream:  &stream,
	}

	var final api.GenerateResponse
	var text strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		debugger.WriteJSON(resp)
		text.WriteString(resp.Response)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &llm.Completion{
		Model: o.model,
		Choices: []llm.CompletionChoice{{
			Index:        0,
			Text:         text.String(),
			FinishReason: normalizeStopReason(final.DoneReason),
		}},
		Usage: usageFromMetrics(final.PromptEvalCount, final.EvalCount, final.DoneReason),
	}, nil
}

// chatResponseToCompletion maps a (possibly aggregated) /api/chat response
// onto the chat completion shape.
func chatResponseToCompletion(model string, resp api.ChatResponse) *llm.ChatCompletion {
	msg := &llm.ChatMessage{Role: llm.RoleAssistant}

	if len(resp.Message.ToolCalls) > 0 {
		msg.ToolCalls = make([]llm.ToolCall, 0, len(resp.Message.ToolCalls))
		for i, tc := range resp.Message.ToolCalls {
			argsB, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				slog.Warn("Failed to marshal tool call arguments", "provider", "ollama", "error", err)
				argsB = []byte("{}")
			}
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:   id,
				Type: "function",
				Function: llm.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: string(argsB),
				},
			})
		}
		if resp.Message.Content != "" {
			msg.Content = llm.Text(resp.Message.Content)
		}
	} else {
		msg.Content = llm.Text(resp.Message.Content)
	}

	reason := normalizeStopReason(resp.DoneReason)
	if len(msg.ToolCalls) > 0 {
		reason = llm.StopReasonToolCalls
	}

	return &llm.ChatCompletion{
		Model: model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: reason,
		}},
		Usage: usageFromMetrics(resp.PromptEvalCount, resp.EvalCount, resp.DoneReason),
	}
}

func usageFromMetrics(prompt, eval int, reason string) *llm.LLMUsage {
	if prompt == 0 && eval == 0 {
		return nil
	}
	return &llm.LLMUsage{
		PromptTokens:     prompt,
		CompletionTokens: eval,
		TotalTokens:      prompt + eval,
		StopReason:       reason,
	}
}

// convertMessages converts messages to Ollama API format
func convertMessages(messages []llm.Message) []api.Message {
	ollamaMsgs := make([]api.Message, 0, len(messages))

	for _, m := range messages {
		msg := api.Message{
			Role:    m.Role,
			Content: m.GetTextContent(),
		}

		calls := m.ToolCalls
		if m.FunctionCall != nil {
			calls = append(calls, llm.ToolCall{Function: *m.FunctionCall})
		}
		for _, tc := range calls {
			// api.ToolCallFunctionArguments only decodes from JSON objects
			var apiArgs api.ToolCallFunctionArguments
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &apiArgs); err != nil {
				slog.Warn("Failed to unmarshal tool arguments for history", "provider", "ollama", "error", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				ID: tc.ID,
				Function: api.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: apiArgs,
				},
			})
		}

		switch m.Role {
		case llm.RoleTool:
			msg.ToolCallID = m.ToolCallID
		case llm.RoleFunction:
			// Ollama has no function role; legacy function results become tool results.
			msg.Role = llm.RoleTool
		}

		ollamaMsgs = append(ollamaMsgs, msg)
	}

	return ollamaMsgs
}

// convertTools goes through JSON since api.Tool mirrors the OpenAI wire shape.
func convertTools(tools []llm.ToolSpec) api.Tools {
	if len(tools) == 0 {
		return nil
	}
	wire := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		wire = append(wire, map[string]any{"type": "function", "function": t})
	}
	rawB, err := json.Marshal(wire)
	if err != nil {
		slog.Error("Failed to marshal tools", "provider", "ollama", "error", err)
		return nil
	}
	var out api.Tools
	if err := json.Unmarshal(rawB, &out); err != nil {
		slog.Error("Failed to unmarshal to api.Tools", "provider", "ollama", "error", err)
		return nil
	}
	return out
}

func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	default:
		return reason
	}
}

// IsTransientError implements the llm.CompletionClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	return strings.Contains(errMsg, "overloaded") || strings.Contains(errMsg, "server busy")
}

//----------------------------------------------------------------
// JSONFixingRoundTripper - Interceptor that fixes illegal JSON escapes
//----------------------------------------------------------------

// JSONFixingRoundTripper strips illegal escapes (e.g. \$) some models emit
// inside Ollama's JSON payloads.
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		// Removing a backslash only ever shrinks the buffer, so it is safe in place.
		fixed := illegalEscapeRegex.ReplaceAll(p[:n], []byte("$1"))
		if len(fixed) < n {
			n = copy(p, fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}
