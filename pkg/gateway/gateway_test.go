package gateway

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"replygen/pkg/api"
	"replygen/pkg/monitor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	id       string
	startErr error
	ctx      api.ChannelContext
	mu       sync.Mutex
	sent     []string
	signals  []string
	stopped  bool
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Start(ctx api.ChannelContext) error {
	c.ctx = ctx
	return c.startErr
}

func (c *fakeChannel) Stop() error {
	c.stopped = true
	return nil
}

func (c *fakeChannel) Send(session api.SessionContext, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeChannel) SendSignal(session api.SessionContext, signal string) error {
	c.signals = append(c.signals, signal)
	return nil
}


type echoHandler struct {
	responder api.MessageResponder
}

func (h *echoHandler) SetResponder(r api.MessageResponder) { h.responder = r }

func (h *echoHandler) OnMessage(msg *api.UnifiedMessage) {
	_ = h.responder.SendSignal(msg.Session, "thinking")
	_ = h.responder.SendReply(msg.Session, "echo: "+msg.Content)
}

func TestBuilderWiresHandlerAndChannels(t *testing.T) {
	ch := &fakeChannel{id: "web"}
	var out bytes.Buffer
	gw, err := NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitorWithWriter(&out)).
		WithChannel(ch).
		WithHandler(&echoHandler{}).
		Build()
	require.NoError(t, err)
	require.NotNil(t, ch.ctx, "channel must be started with the gateway as context")

	session := api.SessionContext{ChannelID: "web", ChatID: "1", Username: "ada"}
	ch.ctx.OnMessage("web", &api.UnifiedMessage{Session: session, Content: "hi"})

	assert.Equal(t, []string{"echo: hi"}, ch.sent)
	assert.Equal(t, []string{"thinking"}, ch.signals)
	assert.Contains(t, out.String(), "hi")
	assert.Contains(t, out.String(), "echo: hi")

	gw.StopAll()
	assert.True(t, ch.stopped)
}

func TestBuilderStartFailure(t *testing.T) {
	_, err := NewGatewayBuilder().
		WithChannel(&fakeChannel{id: "bad", startErr: errors.New("port in use")}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
}

func TestSendReplyUnknownChannel(t *testing.T) {
	gw := NewGatewayManager()
	err := gw.SendReply(api.SessionContext{ChannelID: "nope"}, "x")
	assert.Error(t, err)
	assert.Error(t, gw.SendSignal(api.SessionContext{ChannelID: "nope"}, "thinking"))
}

func TestSendSignalIgnoredByPlainChannel(t *testing.T) {
	gw := NewGatewayManager()
	gw.Register(simpleChannel{id: "plain"})
	assert.NoError(t, gw.SendSignal(api.SessionContext{ChannelID: "plain"}, "thinking"))
}

type simpleChannel struct{ id string }

func (c simpleChannel) ID() string { return c.id }
func (c simpleChannel) Start(api.ChannelContext) error { return nil }
func (c simpleChannel) Stop() error { return nil }
func (c simpleChannel) Send(api.SessionContext, string) error { return nil }
