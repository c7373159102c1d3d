package llm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ChatHistory 管理單一對話的訊息紀錄
type ChatHistory struct {
	messages []Message
	mu       sync.RWMutex
}

// NewChatHistory 建立一個新的歷史管理員
func NewChatHistory() *ChatHistory {
	return &ChatHistory{
		messages: make([]Message, 0),
	}
}

// Add 加入新訊息
func (h *ChatHistory) Add(msgs ...Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msgs...)
}

// GetMessages 取得目前的對話歷史副本
func (h *ChatHistory) GetMessages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cp := make([]Message, len(h.messages))
	for i, m := range h.messages {
		cp[i] = m.Clone()
	}
	return cp
}

// Len returns the number of stored messages.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// PopContext removes and returns the context of the last message.
func (h *ChatHistory) PopContext() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) == 0 {
		return nil
	}
	last := &h.messages[len(h.messages)-1]
	ctx := last.Context
	last.Context = nil
	return ctx
}

// Clear drops every message.
func (h *ChatHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
}

// Load replaces the history with the contents of path. A missing file leaves
// the history empty.
func (h *ChatHistory) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read history: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("failed to parse history %s: %w", path, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = msgs
	return nil
}

// Save writes the history to path atomically.
func (h *ChatHistory) Save(path string) error {
	h.mu.RLock()
	data, err := json.MarshalIndent(h.messages, "", "  ")
	h.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
