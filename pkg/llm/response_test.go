package llm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseResponse(t *testing.T) {
	t.Run("text completion", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"object":"text_completion","model":"m","choices":[{"index":0,"text":"hello"}]}`))
		require.NoError(t, err)

		c, ok := resp.(*Completion)
		require.True(t, ok)
		assert.Equal(t, "m", c.ModelName())
		assert.Equal(t, "hello", c.Choices[0].Text)
	})

	t.Run("chat completion", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":null}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
		require.NoError(t, err)

		c, ok := resp.(*ChatCompletion)
		require.True(t, ok)
		assert.Nil(t, c.Choices[0].Message.Content)
		require.NotNil(t, c.TokenUsage())
		assert.Equal(t, 4, c.TokenUsage().TotalTokens)
	})

	t.Run("missing object reads as chat", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"choices":[]}`))
		require.NoError(t, err)
		assert.Equal(t, ObjectChatCompletion, resp.Object())
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseResponse([]byte(`{"choices":`))
		assert.Error(t, err)
	})
}

func TestEncodeResponseRoundTrip(t *testing.T) {
	responses := []CompletionResponse{
		&Completion{Model: "m", Choices: []CompletionChoice{{Text: "t", FinishReason: StopReasonStop}}},
		&ChatCompletion{Model: "m", Choices: []ChatChoice{{
			Message: &ChatMessage{
				Role:      RoleAssistant,
				ToolCalls: []ToolCall{{ID: "c", Type: "function", Function: FunctionCall{Name: "f", Arguments: `{"a":1}`}}},
			},
			FinishReason: StopReasonToolCalls,
		}}},
	}

	for _, want := range responses {
		raw, err := EncodeResponse(want)
		require.NoError(t, err)
		assert.Equal(t, want.Object(), gjson.GetBytes(raw, "object").String())

		got, err := ParseResponse(raw)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}
