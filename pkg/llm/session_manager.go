package llm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var filenameSafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// SessionManager manages conversation histories isolated by sender.
// It is the conversation store the agent reads when no history is supplied.
type SessionManager struct {
	histories map[string]*ChatHistory
	storage   string
	mu        sync.RWMutex
}

// NewSessionManager initializes a SessionManager with a specific storage
// directory. An empty storage keeps everything in memory.
func NewSessionManager(storage string) *SessionManager {
	if storage != "" {
		if err := os.MkdirAll(storage, 0755); err != nil {
			slog.Error("Failed to create history dir", "dir", storage, "error", err)
		}
	}
	return &SessionManager{
		histories: make(map[string]*ChatHistory),
		storage:   storage,
	}
}

func (sm *SessionManager) historyPath(sender string) string {
	safeID := filenameSafeRegex.ReplaceAllString(sender, "_")
	return filepath.Join(sm.storage, fmt.Sprintf("history_%s.json", safeID))
}

// GetHistory retrieves an existing ChatHistory for a sender or creates/loads a new one.
func (sm *SessionManager) GetHistory(sender string) (*ChatHistory, error) {
	sm.mu.RLock()
	h, ok := sm.histories[sender]
	sm.mu.RUnlock()

	if ok {
		return h, nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Double check under lock
	if h, ok = sm.histories[sender]; ok {
		return h, nil
	}

	h = NewChatHistory()
	if sm.storage != "" {
		if err := h.Load(sm.historyPath(sender)); err != nil {
			return nil, err
		}
	}

	sm.histories[sender] = h
	return h, nil
}

// Lookup returns a copy of the sender's message log. Load failures yield an
// empty log.
func (sm *SessionManager) Lookup(sender string) []Message {
	h, err := sm.GetHistory(sender)
	if err != nil {
		slog.Error("Failed to load history", "sender", sender, "error", err)
		return nil
	}
	return h.GetMessages()
}

// PopContext consumes the context attached to the sender's last message.
func (sm *SessionManager) PopContext(sender string) map[string]any {
	h, err := sm.GetHistory(sender)
	if err != nil {
		return nil
	}
	return h.PopContext()
}

// Append adds messages to the sender's log.
func (sm *SessionManager) Append(sender string, msgs ...Message) error {
	h, err := sm.GetHistory(sender)
	if err != nil {
		return err
	}
	h.Add(msgs...)
	return nil
}

// SaveSession persists a specific sender's history to disk.
func (sm *SessionManager) SaveSession(sender string) error {
	sm.mu.RLock()
	h, ok := sm.histories[sender]
	sm.mu.RUnlock()

	if !ok || sm.storage == "" {
		return nil
	}

	return h.Save(sm.historyPath(sender))
}
