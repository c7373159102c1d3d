package llm

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json 用於 package llm 內部的 JSON 處理，統一使用 json-iterator
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	PromptDetail     string `json:"prompt_detail,omitempty"`
	CompletionDetail string `json:"completion_detail,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(model string, usage *LLMUsage) {
	if usage == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n> ### 📊 完整用量統計 (%s)\n", model)
	fmt.Fprintf(&sb, "> | 統計項目 | Token 數量 | 詳細拆解 |\n")
	fmt.Fprintf(&sb, "> | :--- | :--- | :--- |\n")
	fmt.Fprintf(&sb, "> | **提示 (Prompt)** | %d | %s |\n", usage.PromptTokens, usage.PromptDetail)
	fmt.Fprintf(&sb, "> | **回答 (Response)** | %d | %s |\n", usage.CompletionTokens, usage.CompletionDetail)
	fmt.Fprintf(&sb, "> | **總計 (Total)** | **%d** | - |\n", usage.TotalTokens)
	if usage.ThoughtsTokens > 0 {
		fmt.Fprintf(&sb, "> | **思考 (Thoughts)** | %d | - |\n", usage.ThoughtsTokens)
	}

	if usage.StopReason != "" {
		fmt.Fprintf(&sb, "> | **停止原因 (Reason)** | %s | - |\n", usage.StopReason)
	}

	if usage.CachedTokens > 0 {
		fmt.Fprintf(&sb, "> | **快取 (Cached)** | %d | - |\n", usage.CachedTokens)
	}

	fmt.Fprint(&sb, "> ---")

	log.Println(sb.String())
}

// CreateRequest is the input of a single completion call.
type CreateRequest struct {
	// Context is the one-shot side-channel taken from the conversation; it
	// fills {placeholders} when templating is enabled on the client.
	Context map[string]any
	// Messages is the full, already flattened sequence (system first).
	Messages []Message
	// Cache is optional; nil disables caching for this call.
	Cache Cache
	// Tools are advertised to the model when non-empty.
	Tools []ToolSpec
}

// CompletionClient 通用 LLM 客戶端介面
type CompletionClient interface {
	// Create performs one blocking completion call.
	Create(ctx context.Context, req CreateRequest) (CompletionResponse, error)

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool

	// Provider returns the provider name, e.g. "openai".
	Provider() string
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []CompletionClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) Create(ctx context.Context, req CreateRequest) (CompletionResponse, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}

		// 使用配置的重試次數，若為 0 則至少執行 1 次
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "index", i+1, "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			resp, err := client.Create(ctx, req)
			if err == nil {
				return resp, nil
			}

			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "index", i+1, "error", err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			slog.ErrorContext(ctx, "Provider failed", "index", i+1, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// IsTransientError 實作 CompletionClient 介面
// FallbackClient 的錯誤意味著所有 Child 都失敗了，因此視為非暫時性
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}

func (f *FallbackClient) Provider() string {
	return "fallback"
}
