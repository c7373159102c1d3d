package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"replygen/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client   *genai.Client
	model    string
	settings llm.ClientSettings
}

// NewGeminiClient creates a Gemini client with a single model and API key.
// baseURL is optional and mainly used to point at a proxy.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, settings llm.ClientSettings) (*GeminiClient, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:   client,
		model:    model,
		settings: settings,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini"
}

// formatModality formats ModalityTokenCount array for logging
func formatModality(details []*genai.ModalityTokenCount) string {
	if len(details) == 0 {
		return "0"
	}
	var res []string
	for _, d := range details {
		res = append(res, fmt.Sprintf("%v: %d", d.Modality, d.TokenCount))
	}
	return strings.Join(res, " | ")
}

// Create implements llm.CompletionClient. Gemini has a single content
// endpoint; the completion api_type wraps the rendered prompt in one user turn
// and returns a text completion.
func (g *GeminiClient) Create(ctx context.Context, req llm.CreateRequest) (llm.CompletionResponse, error) {
	messages := g.settings.PrepareMessages(req)

	var cacheKey string
	if req.Cache != nil {
		key, err := llm.CacheKey(g.Provider(), g.model, g.settings.APIType, messages, req.Tools)
		if err != nil {
			slog.WarnContext(ctx, "Cache disabled for request", "provider", g.Provider(), "error", err)
		} else {
			cacheKey = key
		}
		if resp, ok := llm.LookupCached(req.Cache, cacheKey); ok {
			slog.DebugContext(ctx, "Cache hit", "provider", g.Provider(), "model", g.model)
			return resp, nil
		}
	}

	var contents []*genai.Content
	var systemInstruction *genai.Content
	if g.settings.APIType == llm.APITypeCompletion {
		contents = []*genai.Content{genai.NewContentFromText(llm.RenderPrompt(messages), genai.RoleUser)}
	} else {
		contents, systemInstruction = convertMessages(messages)
	}

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Tools:             convertTools(req.Tools),
	}
	if t, ok := g.settings.FloatOption("temperature"); ok {
		genCfg.Temperature = genai.Ptr(float32(t))
	}
	if p, ok := g.settings.FloatOption("top_p"); ok {
		genCfg.TopP = genai.Ptr(float32(p))
	}
	if m, ok := g.settings.FloatOption("max_tokens"); ok {
		genCfg.MaxOutputTokens = int32(m)
	}

	callCtx, cancel := g.settings.WithTimeout(ctx)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(callCtx, g.model, contents, genCfg)
	if err != nil {
		slog.ErrorContext(ctx, "Gemini request failed", "model", g.model, "error", err)
		return nil, fmt.Errorf("gemini completion failed: %w", err)
	}

	debugger := llm.NewResponseDebugger(ctx, g.Provider(), g.settings.Debug)
	debugger.WriteJSON(resp)
	debugger.Close()

	var out llm.CompletionResponse
	if g.settings.APIType == llm.APITypeCompletion {
		out = toCompletion(g.model, resp)
	} else {
		out = toChatCompletion(g.model, resp)
	}

	llm.LogUsage(g.model, out.TokenUsage())
	llm.StoreCached(req.Cache, cacheKey, out)
	return out, nil
}

func usageFrom(resp *genai.GenerateContentResponse) *llm.LLMUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	u := resp.UsageMetadata
	return &llm.LLMUsage{
		PromptTokens:     int(u.PromptTokenCount),
		PromptDetail:     formatModality(u.PromptTokensDetails),
		CompletionTokens: int(u.CandidatesTokenCount),
		CompletionDetail: formatModality(u.CandidatesTokensDetails),
		TotalTokens:      int(u.TotalTokenCount),
		ThoughtsTokens:   int(u.ThoughtsTokenCount),
		CachedTokens:     int(u.CachedContentTokenCount),
	}
}

// toChatCompletion maps each candidate to a chat choice. Thought parts are
// dropped; function calls become tool calls.
func toChatCompletion(model string, resp *genai.GenerateContentResponse) *llm.ChatCompletion {
	out := &llm.ChatCompletion{Model: model, Choices: []llm.ChatChoice{}, Usage: usageFrom(resp)}
	if resp == nil {
		return out
	}

	for i, candidate := range resp.Candidates {
		choice := llm.ChatChoice{Index: i, FinishReason: normalizeStopReason(candidate.FinishReason)}
		if candidate.Content == nil {
			out.Choices = append(out.Choices, choice)
			continue
		}

		msg := &llm.ChatMessage{Role: llm.RoleAssistant}
		var text strings.Builder
		hasText := false
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
				hasText = true
			}
			if fc := part.FunctionCall; fc != nil {
				argsB, err := json.Marshal(fc.Args)
				if err != nil {
					argsB = []byte("{}")
				}
				id := fc.ID
				if id == "" {
					id = fmt.Sprintf("call_%d_%d", i, len(msg.ToolCalls))
				}
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:   id,
					Type: "function",
					Function: llm.FunctionCall{
						Name:      fc.Name,
						Arguments: string(argsB),
					},
				})
			}
		}
		if hasText {
			msg.Content = llm.Text(text.String())
		}
		if len(msg.ToolCalls) > 0 {
			choice.FinishReason = llm.StopReasonToolCalls
		}
		choice.Message = msg
		out.Choices = append(out.Choices, choice)
	}
	return out
}

func toCompletion(model string, resp *genai.GenerateContentResponse) *llm.Completion {
	out := &llm.Completion{Model: model, Choices: []llm.CompletionChoice{}, Usage: usageFrom(resp)}
	if resp == nil {
		return out
	}
	for i, candidate := range resp.Candidates {
		var text strings.Builder
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part != nil && !part.Thought {
					text.WriteString(part.Text)
				}
			}
		}
		out.Choices = append(out.Choices, llm.CompletionChoice{
			Index:        i,
			Text:         text.String(),
			FinishReason: normalizeStopReason(candidate.FinishReason),
		})
	}
	return out
}

func normalizeStopReason(reason genai.FinishReason) string {
	switch reason {
	case "", genai.FinishReasonStop:
		return llm.StopReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return strings.ToLower(string(reason))
	}
}

// convertMessages converts message list to GenAI format. System messages are
// merged into the system instruction.
func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content
	var systemParts []*genai.Part

	// Gemini function responses are matched by name, so remember which call
	// id belongs to which function.
	callNames := make(map[string]string)

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			if text := msg.GetTextContent(); text != "" {
				systemParts = append(systemParts, &genai.Part{Text: text})
			}
			continue

		case llm.RoleTool, llm.RoleFunction:
			name := msg.Name
			if name == "" {
				name = callNames[msg.ToolCallID]
			}
			genaiContents = append(genaiContents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     name,
						Response: map[string]any{"result": msg.GetTextContent()},
					},
				}},
			})
			continue
		}

		role := genai.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}

		var parts []*genai.Part
		if text := msg.GetTextContent(); text != "" {
			parts = append(parts, &genai.Part{Text: text})
		}

		calls := msg.ToolCalls
		if msg.FunctionCall != nil {
			calls = append(calls, llm.ToolCall{Function: *msg.FunctionCall})
		}
		for _, tc := range calls {
			var args map[string]any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				slog.Warn("Failed to parse tool arguments for history", "provider", "gemini", "error", err)
			}
			callNames[tc.ID] = tc.Function.Name
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				},
			})
		}

		if len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	var systemInstruction *genai.Content
	if len(systemParts) > 0 {
		systemInstruction = &genai.Content{Parts: systemParts}
	}
	return genaiContents, systemInstruction
}

func convertTools(tools []llm.ToolSpec) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var fds []*genai.FunctionDeclaration
	for _, t := range tools {
		fd := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		if t.Parameters != nil {
			schemaB, err := json.Marshal(t.Parameters)
			if err == nil {
				var schema genai.Schema
				if err := json.Unmarshal(schemaB, &schema); err == nil {
					fd.Parameters = &schema
				}
			}
		}
		fds = append(fds, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

// IsTransientError implements the llm.CompletionClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())

	// 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 500 Internal Error
	return strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error")
}
