package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Role, text, and part order must survive a marshal/unmarshal round trip.
func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		Role: RoleUser,
		Content: []MessageContent{
			NewTextContent("look at this"),
			NewImageContentFromURL("https://example.com/cat.png", "image/png"),
			NewTextContent("what is it?"),
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, RoleUser, decoded.Role)
	require.Len(t, decoded.Content, 3)
	assert.Equal(t, MessageTypeText, decoded.Content[0].Type())
	assert.Equal(t, MessageTypeImage, decoded.Content[1].Type())
	assert.Equal(t, MessageTypeText, decoded.Content[2].Type())
	assert.Equal(t, "look at this", decoded.Content[0].(*TextContent).Text)
	assert.Equal(t, "what is it?", decoded.Content[2].(*TextContent).Text)
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage("call_1", "get_weather", `{"temp": 18}`)

	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call_1", msg.ToolCallID)
	assert.Equal(t, "get_weather", msg.ToolName)
	assert.Equal(t, `{"temp": 18}`, msg.GetText())
}

func TestMessageDeepCopy(t *testing.T) {
	msg := NewTextMessage(RoleAssistant, "original")
	msg.AddToolCall(ToolCall{ID: "call_1", Type: "function"})
	msg.AddImageBytes([]byte{1, 2, 3}, "image/png")

	clone := msg.DeepCopy()
	clone.SetText("mutated")
	clone.ToolCalls[0].ID = "changed"
	clone.Content = clone.Content[:1]

	assert.Equal(t, "original", msg.GetText())
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	require.Len(t, msg.Content, 2)
}

func TestMessageValidate(t *testing.T) {
	valid := NewTextMessage(RoleUser, "hello")
	assert.NoError(t, valid.Validate())

	invalid := NewTextMessage(RoleUser, "   ")
	assert.Error(t, invalid.Validate())
}

func TestMessageHelpers(t *testing.T) {
	msg := NewTextMessage(RoleUser, "hi")
	assert.True(t, msg.IsTextOnly())
	assert.False(t, msg.HasToolCalls())

	msg.AddImageBytes([]byte{0xFF}, "image/jpeg")
	assert.False(t, msg.IsTextOnly())
	assert.True(t, msg.HasContentType(MessageTypeImage))
	assert.Len(t, msg.GetContentByType(MessageTypeText), 1)
}
