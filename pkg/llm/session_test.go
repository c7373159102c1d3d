package llm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatHistory(t *testing.T) {
	h := NewChatHistory()
	assert.Nil(t, h.PopContext())

	h.Add(NewUserMessage("a"), Message{Role: RoleUser, Content: Text("b"), Context: map[string]any{"k": "v"}})
	assert.Equal(t, 2, h.Len())

	msgs := h.GetMessages()
	*msgs[0].Content = "changed"
	assert.Equal(t, "a", h.GetMessages()[0].GetTextContent(), "GetMessages returns copies")

	assert.Equal(t, map[string]any{"k": "v"}, h.PopContext())
	assert.Nil(t, h.PopContext(), "context is consumed once")

	h.Clear()
	assert.Equal(t, 0, h.Len())
}

func TestChatHistorySaveLoad(t *testing.T) {
	path := t.TempDir() + "/nested/history.json"

	h := NewChatHistory()
	h.Add(NewUserMessage("hi"), Message{
		Role:          RoleTool,
		Content:       Text("r"),
		ToolResponses: []Message{NewToolMessage("c1", "r")},
	})
	require.NoError(t, h.Save(path))

	loaded := NewChatHistory()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, h.GetMessages(), loaded.GetMessages())

	missing := NewChatHistory()
	require.NoError(t, missing.Load(t.TempDir()+"/none.json"))
	assert.Equal(t, 0, missing.Len())
}

func TestSessionManagerPersistsPerSender(t *testing.T) {
	dir := t.TempDir()

	sm := NewSessionManager(dir)
	require.NoError(t, sm.Append("web_1", NewUserMessage("one")))
	require.NoError(t, sm.Append("web/2", NewUserMessage("two")))
	require.NoError(t, sm.SaveSession("web_1"))
	require.NoError(t, sm.SaveSession("web/2"))

	reloaded := NewSessionManager(dir)
	assert.Equal(t, []Message{NewUserMessage("one")}, reloaded.Lookup("web_1"))
	assert.Equal(t, []Message{NewUserMessage("two")}, reloaded.Lookup("web/2"))
	assert.Empty(t, reloaded.Lookup("unknown"))
}

func TestSessionManagerInMemory(t *testing.T) {
	sm := NewSessionManager("")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sm.Append("s", NewUserMessage("x"))
		}()
	}
	wg.Wait()

	assert.Len(t, sm.Lookup("s"), 20)
	assert.NoError(t, sm.SaveSession("s"))

	require.NoError(t, sm.Append("s", Message{Role: RoleUser, Content: Text("y"), Context: map[string]any{"a": 1}}))
	assert.Equal(t, map[string]any{"a": 1}, sm.PopContext("s"))
	assert.Nil(t, sm.PopContext("s"))
}
