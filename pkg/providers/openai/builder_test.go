package openai

import (
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/llm"
)

func testDefs() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        "get_weather",
		Description: "Current weather",
		Parameters: []llm.ToolParameter{
			{Name: "city", Type: "string", Required: true},
		},
	}}
}

func TestBuildRequestPreservesRolesAndOrder(t *testing.T) {
	req := llm.ChatRequest{
		Messages: []llm.Message{
			llm.NewTextMessage(llm.RoleSystem, "be brief"),
			llm.NewTextMessage(llm.RoleUser, "hi"),
			llm.NewTextMessage(llm.RoleAssistant, "hello"),
			llm.NewTextMessage(llm.RoleUser, "bye"),
		},
	}

	out, err := BuildRequest(req, nil, llm.ToolModeNative, "gpt-4o-mini")
	require.Nil(t, err)
	assert.Equal(t, "gpt-4o-mini", out.Model)
	require.Len(t, out.Messages, 4)
	assert.Equal(t, "system", out.Messages[0].Role)
	assert.Equal(t, "be brief", out.Messages[0].Content)
	assert.Equal(t, "user", out.Messages[1].Role)
	assert.Equal(t, "assistant", out.Messages[2].Role)
	assert.Equal(t, "bye", out.Messages[3].Content)
	assert.Empty(t, out.Tools)
}

func TestBuildRequestIsPure(t *testing.T) {
	req := llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	}
	first, err1 := BuildRequest(req, testDefs(), llm.ToolModeFallback, "m")
	second, err2 := BuildRequest(req, testDefs(), llm.ToolModeFallback, "m")
	require.Nil(t, err1)
	require.Nil(t, err2)
	assert.Equal(t, first, second)
}

func TestBuildRequestNativeTools(t *testing.T) {
	req := llm.ChatRequest{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}}

	out, err := BuildRequest(req, testDefs(), llm.ToolModeNative, "m")
	require.Nil(t, err)
	require.Len(t, out.Tools, 1)
	assert.Equal(t, openai.ToolTypeFunction, out.Tools[0].Type)
	assert.Equal(t, "get_weather", out.Tools[0].Function.Name)
	// schema stays out of the system prompt
	assert.Equal(t, "hi", out.Messages[0].Content)
}

func TestBuildRequestFallbackInjectsSchema(t *testing.T) {
	req := llm.ChatRequest{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}}

	out, err := BuildRequest(req, testDefs(), llm.ToolModeFallback, "m")
	require.Nil(t, err)
	assert.Empty(t, out.Tools)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "system", out.Messages[0].Role)
	assert.Contains(t, out.Messages[0].Content, "get_weather")
	assert.Contains(t, out.Messages[0].Content, "<tool_call>")
}

func TestBuildRequestToolResultMessage(t *testing.T) {
	result := llm.NewToolResultMessage("call_1", "get_weather", `{"temp": 18}`)
	req := llm.ChatRequest{Messages: []llm.Message{result}}

	t.Run("native", func(t *testing.T) {
		out, err := BuildRequest(req, testDefs(), llm.ToolModeNative, "m")
		require.Nil(t, err)
		require.Len(t, out.Messages, 1)
		assert.Equal(t, "tool", out.Messages[0].Role)
		assert.Equal(t, "call_1", out.Messages[0].ToolCallID)
		assert.Equal(t, `{"temp": 18}`, out.Messages[0].Content)
	})

	t.Run("fallback", func(t *testing.T) {
		out, err := BuildRequest(req, testDefs(), llm.ToolModeFallback, "m")
		require.Nil(t, err)
		require.Len(t, out.Messages, 2) // injected system + converted result
		last := out.Messages[1]
		assert.Equal(t, "user", last.Role)
		assert.Contains(t, last.Content, "Tool response from get_weather")
	})
}

func TestBuildRequestAssistantToolCalls(t *testing.T) {
	msg := llm.Message{Role: llm.RoleAssistant}
	msg.AddToolCall(llm.ToolCall{
		ID:       "call_1",
		Type:     "function",
		Function: llm.ToolCallFunction{Name: "get_weather", Arguments: `{"city": "NYC"}`},
	})
	req := llm.ChatRequest{Messages: []llm.Message{msg}}

	out, err := BuildRequest(req, testDefs(), llm.ToolModeNative, "m")
	require.Nil(t, err)
	require.Len(t, out.Messages[0].ToolCalls, 1)
	assert.Equal(t, "call_1", out.Messages[0].ToolCalls[0].ID)
	assert.Equal(t, "get_weather", out.Messages[0].ToolCalls[0].Function.Name)
}

func TestBuildRequestImageBecomesDataURL(t *testing.T) {
	msg := llm.NewTextMessage(llm.RoleUser, "what is this?")
	msg.AddImageBytes([]byte{0x89, 0x50}, "image/png")
	req := llm.ChatRequest{Messages: []llm.Message{msg}}

	out, err := BuildRequest(req, nil, llm.ToolModeNative, "gpt-4o")
	require.Nil(t, err)
	require.Len(t, out.Messages, 1)

	parts := out.Messages[0].MultiContent
	require.Len(t, parts, 2)
	assert.Equal(t, openai.ChatMessagePartTypeText, parts[0].Type)
	assert.Equal(t, openai.ChatMessagePartTypeImageURL, parts[1].Type)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestBuildRequestSamplingParams(t *testing.T) {
	temp := float32(0.2)
	maxTokens := 100
	req := llm.ChatRequest{
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}

	out, err := BuildRequest(req, nil, llm.ToolModeNative, "m")
	require.Nil(t, err)
	assert.InDelta(t, 0.2, out.Temperature, 0.0001)
	assert.Equal(t, 100, out.MaxTokens)
}
