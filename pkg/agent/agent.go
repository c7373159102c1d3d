package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"replygen/pkg/api"
	"replygen/pkg/llm"
	"replygen/pkg/tools"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConversationStore is where the agent finds a sender's message log when the
// caller does not pass one.
type ConversationStore interface {
	Lookup(sender string) []llm.Message
	// PopContext consumes the side-channel context of the sender's last message.
	PopContext(sender string) map[string]any
}

// ReplyRequest carries the inputs of one reply.
type ReplyRequest struct {
	Messages []llm.Message        // nil means "use the stored log of Sender"
	Sender   string               // conversation key in the store
	Client   llm.CompletionClient // overrides the agent's default client
	Context  map[string]any       // explicit side-channel, wins over the stored one
}

// ReplyFunc is one link of the reply chain. handled=false passes the request
// on to the next function.
type ReplyFunc func(ctx context.Context, a *Agent, req ReplyRequest) (handled bool, reply Reply, err error)

// Agent turns conversation logs into replies through a completion client.
type Agent struct {
	name       string
	client     llm.CompletionClient
	cache      llm.Cache
	store      ConversationStore
	normalizer NameNormalizer
	serializer Serializer
	toolReg    api.ToolRegistry

	mu      sync.RWMutex // Protects system and replies
	system  []llm.Message
	replies []ReplyFunc
}

// NewAgent creates an agent with the given default client. client may be nil,
// in which case only per-request clients produce replies.
func NewAgent(name string, client llm.CompletionClient) *Agent {
	a := &Agent{
		name:       name,
		client:     client,
		normalizer: NameNormalizerFunc(SanitizeName),
		serializer: JSONSerializer{},
	}
	a.RegisterReply(func(ctx context.Context, a *Agent, req ReplyRequest) (bool, Reply, error) {
		return a.GenerateReply(ctx, req)
	})
	return a
}

// Name returns the agent's display name.
func (a *Agent) Name() string {
	return a.name
}

// SetSystemMessage replaces the system prompt. An empty prompt removes it.
func (a *Agent) SetSystemMessage(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prompt == "" {
		a.system = nil
		return
	}
	a.system = []llm.Message{llm.NewSystemMessage(prompt)}
}

// SystemMessages returns a copy of the system messages prepended to every call.
func (a *Agent) SystemMessages() []llm.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]llm.Message, len(a.system))
	for i, m := range a.system {
		out[i] = m.Clone()
	}
	return out
}

// SetStore sets the conversation store consulted when a request has no messages.
func (a *Agent) SetStore(store ConversationStore) {
	a.store = store
}

// SetCache sets the cache handle passed to every completion call.
func (a *Agent) SetCache(cache llm.Cache) {
	a.cache = cache
}

// SetNameNormalizer swaps the rule applied to function and tool names.
func (a *Agent) SetNameNormalizer(n NameNormalizer) {
	if n != nil {
		a.normalizer = n
	}
}

// SetSerializer swaps how chat messages are turned into reply mappings.
func (a *Agent) SetSerializer(s Serializer) {
	if s != nil {
		a.serializer = s
	}
}

// SetToolRegistry sets the tool registry used for advertising and executing tools.
func (a *Agent) SetToolRegistry(tr api.ToolRegistry) {
	a.toolReg = tr
}

// RegisterTool adds one or more tools to the agent's registry.
// It automatically initializes the registry if it's currently nil.
func (a *Agent) RegisterTool(tl ...api.Tool) {
	if a.toolReg == nil {
		a.toolReg = tools.NewToolRegistry()
	}
	for _, t := range tl {
		a.toolReg.Register(t)
	}
}

// RegisterReply puts f at the front of the reply chain; the most recently
// registered function is tried first.
func (a *Agent) RegisterReply(f ReplyFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append([]ReplyFunc{f}, a.replies...)
}

// Reply runs the reply chain and returns the first handled reply. When no
// function handles the request the reply is null.
func (a *Agent) Reply(ctx context.Context, req ReplyRequest) (Reply, error) {
	a.mu.RLock()
	chain := append([]ReplyFunc(nil), a.replies...)
	a.mu.RUnlock()

	for _, f := range chain {
		handled, reply, err := f(ctx, a, req)
		if err != nil {
			return Reply{}, err
		}
		if handled {
			return reply, nil
		}
	}
	return Reply{}, nil
}

// GenerateReply asks the completion client for the next reply.
//
// It reports handled=false when there is no client to ask. The reply is the
// first choice's text, the first choice's message as a mapping (function and
// tool names normalized) when the model requested a call, or null.
func (a *Agent) GenerateReply(ctx context.Context, req ReplyRequest) (bool, Reply, error) {
	client := req.Client
	if client == nil {
		client = a.client
	}
	if client == nil {
		return false, Reply{}, nil
	}

	history := req.Messages
	fromStore := false
	if history == nil && a.store != nil {
		history = a.store.Lookup(req.Sender)
		fromStore = true
	}

	callContext := req.Context
	if fromStore {
		if popped := a.store.PopContext(req.Sender); callContext == nil {
			callContext = popped
		}
	} else if callContext == nil && len(history) > 0 {
		callContext = history[len(history)-1].Context
	}

	messages := llm.WithoutContext(llm.Flatten(a.SystemMessages(), history))

	resp, err := client.Create(ctx, llm.CreateRequest{
		Context:  callContext,
		Messages: messages,
		Cache:    a.cache,
		Tools:    a.toolSpecs(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Completion failed", "agent", a.name, "provider", client.Provider(), "error", err)
		return false, Reply{}, fmt.Errorf("generate reply: %w", err)
	}

	extracted := llm.Extract(resp)
	if len(extracted) == 0 {
		slog.WarnContext(ctx, "Completion returned no choices", "agent", a.name, "model", resp.ModelName())
		return true, Reply{}, nil
	}

	first := extracted[0]
	if first.Message == nil {
		if first.Text == nil {
			return true, Reply{}, nil
		}
		return true, TextReply(*first.Text), nil
	}

	mapping, err := a.serializer.ToMapping(first.Message)
	if err != nil {
		return false, Reply{}, fmt.Errorf("serialize reply: %w", err)
	}
	return true, MappingReply(normalizeCallNames(mapping, a.normalizer)), nil
}

func (a *Agent) toolSpecs() []llm.ToolSpec {
	if a.toolReg == nil {
		return nil
	}
	all := a.toolReg.GetAll()
	if len(all) == 0 {
		return nil
	}
	specs := make([]llm.ToolSpec, 0, len(all))
	for _, t := range all {
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}
