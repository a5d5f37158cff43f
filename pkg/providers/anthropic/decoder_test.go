package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/llm"
)

func TestDecodeSkipsEventAndKeepAliveLines(t *testing.T) {
	dec := NewDecoder()
	for _, line := range []string{"", "event: content_block_delta", ": keep-alive"} {
		delta, err := dec.Decode(line)
		assert.NoError(t, err, "line %q", line)
		assert.Nil(t, delta, "line %q", line)
	}
}

func TestDecodeMessageStartUsage(t *testing.T) {
	line := `data: {"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":25,"output_tokens":1}}}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	require.NotNil(t, delta)
	require.NotNil(t, delta.Usage)
	assert.Equal(t, 25, *delta.Usage.PromptTokens)
	assert.Nil(t, delta.Usage.CompletionTokens)
}

func TestDecodeToolUseBlockStart(t *testing.T) {
	line := `data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_01","name":"get_weather","input":{}}}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	require.Len(t, delta.Tools, 1)
	assert.Equal(t, "1", delta.Tools[0].Slot)
	assert.Equal(t, "toolu_01", delta.Tools[0].ID)
	assert.Equal(t, "get_weather", delta.Tools[0].Name)
	assert.Empty(t, delta.Tools[0].Arguments)
}

func TestDecodeTextBlockStartIgnored(t *testing.T) {
	line := `data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	assert.Nil(t, delta)
}

func TestDecodeTextDelta(t *testing.T) {
	line := `data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.Equal(t, "Hello", delta.Text)
}

func TestDecodeInputJSONDelta(t *testing.T) {
	line := `data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	require.Len(t, delta.Tools, 1)
	assert.Equal(t, "1", delta.Tools[0].Slot)
	assert.Equal(t, `{"city":`, delta.Tools[0].Arguments)
}

func TestDecodeContentBlockStop(t *testing.T) {
	delta, err := NewDecoder().Decode(`data: {"type":"content_block_stop","index":1}`)
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.True(t, delta.ToolStop)
}

func TestDecodeMessageDeltaUsage(t *testing.T) {
	line := `data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":42}}`

	delta, err := NewDecoder().Decode(line)
	require.NoError(t, err)
	require.NotNil(t, delta)
	require.NotNil(t, delta.Usage)
	assert.Equal(t, 42, *delta.Usage.CompletionTokens)
}

func TestDecodeMessageStop(t *testing.T) {
	delta, err := NewDecoder().Decode(`data: {"type":"message_stop"}`)
	require.NoError(t, err)
	require.NotNil(t, delta)
	assert.True(t, delta.Done)
}

func TestDecodePingIgnored(t *testing.T) {
	delta, err := NewDecoder().Decode(`data: {"type":"ping"}`)
	require.NoError(t, err)
	assert.Nil(t, delta)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := NewDecoder().Decode(`data: {"type": "message_start",`)
	require.Error(t, err)

	llmErr, ok := err.(*llm.Error)
	require.True(t, ok)
	assert.Equal(t, llm.ErrorCodeDecodeError, llmErr.Code)
}
