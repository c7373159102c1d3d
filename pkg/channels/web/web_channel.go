package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"replygen/pkg/api"
	"replygen/pkg/llm"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultPort is used when the web config omits "port".
const DefaultPort = 9453

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for decoupled UI
	},
}

type WebConfig struct {
	Port int `json:"port"` // Default: 9453
}

// IncomingMessage is a JSON frame sent by the browser. Plain-text frames are
// accepted as well.
type IncomingMessage struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// OutgoingMessage is every frame written to the browser.
type OutgoingMessage struct {
	Type  string        `json:"type"`            // "session", "history", "text" or "signal"
	ID    string        `json:"id,omitempty"`    // session id (type "session")
	Text  string        `json:"text,omitempty"`  // reply text (type "text")
	Value string        `json:"value,omitempty"` // signal name (type "signal")
	Data  []llm.Message `json:"data,omitempty"`  // stored log (type "history")
}

type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *SafeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

// WebChannel serves a websocket endpoint at /ws. Every connection is its own
// conversation; a client may resume one with /ws?session=<id>.
type WebChannel struct {
	config      WebConfig
	server      *http.Server
	sessions    *llm.SessionManager  // Manager for fetching histories
	connections map[string]*SafeConn // Map session id -> WS Connection
	mu          sync.RWMutex
}

func NewWebChannel(cfg WebConfig, sessions *llm.SessionManager) *WebChannel {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return &WebChannel{
		config:      cfg,
		sessions:    sessions,
		connections: make(map[string]*SafeConn),
	}
}

func (c *WebChannel) ID() string {
	return "web"
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (c *WebChannel) Handler(ctx api.ChannelContext) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c.handleWebSocket(w, r, ctx)
	})
	return mux
}

func (c *WebChannel) Start(ctx api.ChannelContext) error {
	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.config.Port),
		Handler: c.Handler(ctx),
	}

	slog.Info("Web API listening", "port", c.config.Port)

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Web API server error", "error", err)
		}
	}()

	return nil
}

func (c *WebChannel) Stop() error {
	if c.server != nil {
		return c.server.Close()
	}
	return nil
}

func (c *WebChannel) conn(session api.SessionContext) (*SafeConn, error) {
	c.mu.RLock()
	conn, ok := c.connections[session.ChatID]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("web session %s not connected", session.ChatID)
	}
	return conn, nil
}

func (c *WebChannel) Send(session api.SessionContext, message string) error {
	conn, err := c.conn(session)
	if err != nil {
		return err
	}
	return conn.WriteJSON(OutgoingMessage{Type: "text", Text: message})
}

// SendSignal implements the gateway.SignalingChannel interface
func (c *WebChannel) SendSignal(session api.SessionContext, signal string) error {
	conn, err := c.conn(session)
	if err != nil {
		return err
	}
	return conn.WriteJSON(OutgoingMessage{Type: "signal", Value: signal})
}

func (c *WebChannel) handleWebSocket(w http.ResponseWriter, r *http.Request, ctx api.ChannelContext) {
	sessionID := r.URL.Query().Get("session")
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.NewString()
	}

	rawConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WS Upgrade failed", "error", err)
		return
	}

	// Wrap connection
	conn := &SafeConn{Conn: rawConn}

	session := api.SessionContext{
		ChannelID: c.ID(),
		UserID:    r.RemoteAddr,
		ChatID:    sessionID,
		Username:  "WebUser",
	}

	// Register connection
	c.mu.Lock()
	c.connections[sessionID] = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.connections, sessionID)
		c.mu.Unlock()
		conn.Close()
	}()

	if err := conn.WriteJSON(OutgoingMessage{Type: "session", ID: sessionID}); err != nil {
		slog.Error("Failed to send session id", "error", err)
		return
	}

	// Send history immediately (if any)
	if c.sessions != nil {
		if history := c.sessions.Lookup(session.Sender()); len(history) > 0 {
			if err := conn.WriteJSON(OutgoingMessage{Type: "history", Data: history}); err != nil {
				slog.Error("Failed to send history", "error", err)
			}
		}
	}

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}

		unifiedMsg := &api.UnifiedMessage{Session: session}

		var incoming IncomingMessage
		if err := json.Unmarshal(msgBytes, &incoming); err == nil {
			unifiedMsg.Content = incoming.Text
			unifiedMsg.Context = incoming.Context
		} else {
			// Fallback: treat as plain text
			unifiedMsg.Content = string(msgBytes)
		}

		ctx.OnMessage(c.ID(), unifiedMsg)
	}
}
