package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"replygen/pkg/agent"
	"replygen/pkg/api"
	"replygen/pkg/config"
	"replygen/pkg/llm"
	"replygen/pkg/utils"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ChatHandler connects the gateway to the agent. Each incoming message is
// appended to the sender's log, then the agent replies until it stops asking
// for tools or the turn limit is hit.
type ChatHandler struct {
	agent     *agent.Agent         // Produces replies from the stored conversation
	sessions  *llm.SessionManager  // Per-sender conversation logs
	responder api.MessageResponder // Sends replies back through the gateway
	sysCfg    *config.SystemConfig // Engine-level parameters (turn limit, tools switch)
}

// NewChatHandler creates a handler. The responder is injected later by the
// gateway builder through SetResponder.
func NewChatHandler(a *agent.Agent, sessions *llm.SessionManager, sysCfg *config.SystemConfig) *ChatHandler {
	if sysCfg == nil {
		sysCfg = config.DefaultSystemConfig()
	}
	return &ChatHandler{
		agent:    a,
		sessions: sessions,
		sysCfg:   sysCfg,
	}
}

// SetResponder implements api.ResponderAware.
func (h *ChatHandler) SetResponder(responder api.MessageResponder) {
	h.responder = responder
}

// OnMessage is the entry point for every user message.
func (h *ChatHandler) OnMessage(msg *api.UnifiedMessage) {
	if msg.DebugID == "" {
		msg.DebugID = utils.GenerateID()
	}
	start := time.Now()
	ctx := context.WithValue(context.Background(), llm.DebugDirContextKey, msg.DebugID)
	sender := msg.Session.Sender()

	slog.InfoContext(ctx, "Message received", "channel", msg.Session.ChannelID, "user", msg.Session.Username, "content", msg.Content)

	// --- Slash Commands ---
	// Slash commands are not added to history
	if strings.HasPrefix(msg.Content, "/") {
		h.handleSlashCommand(ctx, msg)
		return
	}

	userMsg := llm.NewUserMessage(msg.Content)
	userMsg.Context = msg.Context
	if err := h.sessions.Append(sender, userMsg); err != nil {
		slog.ErrorContext(ctx, "Failed to load session", "sender", sender, "error", err)
		h.send(msg.Session, fmt.Sprintf("❌ Error: %v", err))
		return
	}
	defer func() {
		if err := h.sessions.SaveSession(sender); err != nil {
			slog.ErrorContext(ctx, "Failed to save session", "sender", sender, "error", err)
		}
	}()

	h.signal(msg.Session, "thinking")
	h.runTurns(ctx, msg.Session)

	slog.InfoContext(ctx, "Agent loop finished", "duration", time.Since(start).String())
}

// runTurns asks the agent for replies, executing requested tools between
// turns, until a reply requests nothing or MaxToolTurns tool rounds ran.
func (h *ChatHandler) runTurns(ctx context.Context, session api.SessionContext) {
	sender := session.Sender()

	for turn := 0; ; turn++ {
		reply, err := h.agent.Reply(ctx, agent.ReplyRequest{Sender: sender})
		if err != nil {
			slog.ErrorContext(ctx, "Reply failed", "sender", sender, "turn", turn, "error", err)
			h.send(session, fmt.Sprintf("❌ %v", err))
			return
		}
		if reply.IsNull() {
			slog.WarnContext(ctx, "Empty reply", "sender", sender, "turn", turn)
			h.send(session, "⚠️ (empty response)")
			return
		}

		assistantMsg, err := reply.ToMessage()
		if err != nil {
			slog.ErrorContext(ctx, "Failed to decode reply", "error", err)
			h.send(session, fmt.Sprintf("❌ %v", err))
			return
		}
		if err := h.sessions.Append(sender, assistantMsg); err != nil {
			slog.ErrorContext(ctx, "Failed to record reply", "sender", sender, "error", err)
			h.send(session, fmt.Sprintf("❌ %v", err))
			return
		}

		if text := assistantMsg.GetTextContent(); text != "" {
			h.send(session, text)
		}

		if !assistantMsg.HasCalls() {
			return
		}
		if !h.sysCfg.EnableTools {
			slog.WarnContext(ctx, "Tool call requested while tools are disabled", "sender", sender)
			return
		}
		if turn >= h.sysCfg.MaxToolTurns {
			slog.WarnContext(ctx, "Max tool turns reached", "max", h.sysCfg.MaxToolTurns)
			h.send(session, "⚠️ Max tool turns reached, forced stop.")
			return
		}

		h.signal(session, "thinking")
		if toolMsg, ok := h.agent.ExecuteToolCalls(ctx, assistantMsg); ok {
			if err := h.sessions.Append(sender, toolMsg); err != nil {
				slog.ErrorContext(ctx, "Failed to record tool results", "sender", sender, "error", err)
				h.send(session, fmt.Sprintf("❌ %v", err))
				return
			}
		}
	}
}

// handleSlashCommand parses and executes manual "slash" commands.
//
//	/reset                          clears the sender's history
//	/<tool> <action> [JSON_params]  runs an action tool directly
func (h *ChatHandler) handleSlashCommand(ctx context.Context, msg *api.UnifiedMessage) {
	parts := strings.SplitN(strings.TrimPrefix(msg.Content, "/"), " ", 3)

	if parts[0] == "reset" {
		history, err := h.sessions.GetHistory(msg.Session.Sender())
		if err != nil {
			h.send(msg.Session, fmt.Sprintf("❌ %v", err))
			return
		}
		history.Clear()
		if err := h.sessions.SaveSession(msg.Session.Sender()); err != nil {
			slog.ErrorContext(ctx, "Failed to save cleared session", "sender", msg.Session.Sender(), "error", err)
			h.send(msg.Session, fmt.Sprintf("❌ History cleared in memory but not saved: %v", err))
			return
		}
		h.send(msg.Session, "🧹 History cleared.")
		return
	}

	if len(parts) < 2 {
		h.send(msg.Session, "❌ Format error. Please use: /[tool_name] [action] [JSON_params(optional)]\nExample: `/system_info now {\"timezone\":\"UTC\"}`")
		return
	}

	toolName, action := parts[0], parts[1]

	params := map[string]any{}
	if len(parts) > 2 {
		if err := json.Unmarshal([]byte(parts[2]), &params); err != nil {
			h.send(msg.Session, fmt.Sprintf("❌ Parameter parsing failed: %v", err))
			return
		}
	}

	args, err := json.Marshal(map[string]any{"action": action, "params": params})
	if err != nil {
		h.send(msg.Session, fmt.Sprintf("❌ %v", err))
		return
	}

	h.send(msg.Session, fmt.Sprintf("🛠️ Manually executing tool: %s/%s...", toolName, action))
	res, _ := h.agent.ExecuteToolCalls(ctx, llm.Message{
		Role:         llm.RoleAssistant,
		FunctionCall: &llm.FunctionCall{Name: toolName, Arguments: string(args)},
	})
	h.send(msg.Session, res.GetTextContent())
}

func (h *ChatHandler) send(session api.SessionContext, content string) {
	if h.responder == nil {
		slog.Warn("No responder set, dropping reply", "channel", session.ChannelID)
		return
	}
	if err := h.responder.SendReply(session, content); err != nil {
		slog.Error("Failed to send reply", "channel", session.ChannelID, "error", err)
	}
}

func (h *ChatHandler) signal(session api.SessionContext, signal string) {
	if h.responder == nil {
		return
	}
	if err := h.responder.SendSignal(session, signal); err != nil {
		slog.Debug("Failed to send signal", "signal", signal, "error", err)
	}
}
