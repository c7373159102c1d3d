package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstantiate(t *testing.T) {
	ctx := map[string]any{"name": "Ada", "count": 3}

	assert.Equal(t, "Hi Ada, you have 3 items", Instantiate("Hi {name}, you have {count} items", ctx))
	assert.Equal(t, "{unknown} stays", Instantiate("{unknown} stays", ctx))
	assert.Equal(t, "{name}", Instantiate("{name}", nil))
	assert.Equal(t, "{ name }", Instantiate("{ name }", ctx))
}

func TestApplyContext(t *testing.T) {
	messages := []Message{
		NewSystemMessage("You are talking to {name}."),
		{Role: RoleAssistant},
	}

	out := ApplyContext(messages, map[string]any{"name": "Ada"})

	assert.Equal(t, "You are talking to Ada.", out[0].GetTextContent())
	assert.Nil(t, out[1].Content)
	assert.Equal(t, "You are talking to {name}.", messages[0].GetTextContent(), "input untouched")
}

func TestPrepareMessagesRespectsTemplateSwitch(t *testing.T) {
	req := CreateRequest{
		Messages: []Message{NewUserMessage("{x}")},
		Context:  map[string]any{"x": "filled"},
	}

	assert.Equal(t, "{x}", ClientSettings{}.PrepareMessages(req)[0].GetTextContent())
	assert.Equal(t, "filled", ClientSettings{AllowFormatStrTemplate: true}.PrepareMessages(req)[0].GetTextContent())
}

func TestRenderPrompt(t *testing.T) {
	got := RenderPrompt([]Message{
		NewSystemMessage("sys"),
		{Role: RoleAssistant},
		NewUserMessage("hi"),
	})
	assert.Equal(t, "system: sys\nuser: hi\nassistant:", got)
}
