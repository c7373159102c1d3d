package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Cache stores raw completion responses keyed by request fingerprint.
// Entries are the wire JSON understood by ParseResponse.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
}

// CacheKey fingerprints a request. Context is not part of the key; when
// templating is on it is already folded into the message contents.
func CacheKey(provider, model, endpoint string, messages []Message, tools []ToolSpec) (string, error) {
	messages = WithoutContext(append([]Message(nil), messages...))
	payload := struct {
		Provider string     `json:"provider"`
		Model    string     `json:"model"`
		Endpoint string     `json:"endpoint"`
		Messages []Message  `json:"messages"`
		Tools    []ToolSpec `json:"tools,omitempty"`
	}{provider, model, endpoint, messages, tools}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// LookupCached returns the cached response for key, if any. Undecodable
// entries are treated as misses.
func LookupCached(cache Cache, key string) (CompletionResponse, bool) {
	if cache == nil || key == "" {
		return nil, false
	}
	raw, ok := cache.Get(key)
	if !ok {
		return nil, false
	}
	resp, err := ParseResponse(raw)
	if err != nil {
		slog.Warn("Discarding unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	return resp, true
}

// StoreCached writes resp under key. Failures are logged, not returned, so a
// broken cache never fails a completion.
func StoreCached(cache Cache, key string, resp CompletionResponse) {
	if cache == nil || key == "" {
		return
	}
	raw, err := EncodeResponse(resp)
	if err != nil {
		slog.Warn("Failed to encode response for cache", "error", err)
		return
	}
	if err := cache.Set(key, raw); err != nil {
		slog.Warn("Failed to write cache entry", "key", key, "error", err)
	}
}

//----------------------------------------------------------------
// MemoryCache
//----------------------------------------------------------------

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	entries map[string][]byte
	mu      sync.RWMutex
}

// NewMemoryCache 建立記憶體快取
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *MemoryCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), value...)
	return nil
}

//----------------------------------------------------------------
// DiskCache
//----------------------------------------------------------------

// DiskCache keeps one file per entry under dir.
type DiskCache struct {
	dir string
	mu  sync.Mutex
}

// NewDiskCache creates dir if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, filenameSafeRegex.ReplaceAllString(key, "_")+".json")
}

func (c *DiskCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to read cache entry", "key", key, "error", err)
		}
		return nil, false
	}
	return b, true
}

func (c *DiskCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path(key))
}
