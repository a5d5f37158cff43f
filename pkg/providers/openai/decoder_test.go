package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/llm"
)

func TestDecodeSkipsNonPayloadLines(t *testing.T) {
	dec := NewDecoder()
	for _, line := range []string{"", "   ", ": keep-alive", "event: message"} {
		delta, err := dec.Decode(line)
		assert.NoError(t, err, "line %q", line)
		assert.Nil(t, delta, "line %q", line)
	}
}

func TestDecodeDoneMarker(t *testing.T) {
	delta, err := NewDecoder().Decode("data: [DONE]")
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.True(t, delta.Done)
}

func TestDecodeTextDelta(t *testing.T) {
	line := `data: {"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":"Hello"}}]}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, "Hello", delta.Text)
	assert.Empty(t, delta.Tools)
	assert.False(t, delta.Done)
}

func TestDecodeToolCallFragments(t *testing.T) {
	first := `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`
	second := `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`

	dec := NewDecoder()

	delta, err := dec.Decode(first)
	require.NoError(t, err)
	require.Len(t, delta.Tools, 1)
	assert.Equal(t, "0", delta.Tools[0].Slot)
	assert.Equal(t, "call_abc", delta.Tools[0].ID)
	assert.Equal(t, "get_weather", delta.Tools[0].Name)

	delta, err = dec.Decode(second)
	require.NoError(t, err)
	require.Len(t, delta.Tools, 1)
	assert.Equal(t, "0", delta.Tools[0].Slot)
	assert.Empty(t, delta.Tools[0].ID)
	assert.Equal(t, `{"city":`, delta.Tools[0].Arguments)
}

func TestDecodeUsageChunk(t *testing.T) {
	line := `data: {"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":12,"total_tokens":21}}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	require.NotNil(t, delta)
	require.NotNil(t, delta.Usage)
	assert.Equal(t, 9, *delta.Usage.PromptTokens)
	assert.Equal(t, 12, *delta.Usage.CompletionTokens)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := NewDecoder().Decode(`data: {"choices": [`)
	require.Error(t, err)

	llmErr, ok := err.(*llm.Error)
	require.True(t, ok)
	assert.Equal(t, llm.ErrorCodeDecodeError, llmErr.Code)
}
