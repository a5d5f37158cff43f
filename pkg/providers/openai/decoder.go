// SSE stream decoding for the OpenAI-compatible wire format
package openai

import (
	"encoding/json"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/modelmux/modelmux/pkg/llm"
)

const streamDoneMarker = "[DONE]"

// Decoder turns one SSE line of an OpenAI-style stream into a neutral
// delta. Blank separator lines, comments, and event-name lines carry no
// payload and are skipped.
type Decoder struct{}

// NewDecoder creates a decoder for one streaming request
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode implements llm.Decoder
func (d *Decoder) Decode(line string) (*llm.RawDelta, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return nil, nil
	}
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		// event-name or other SSE field lines carry no payload
		return nil, nil
	}
	data = strings.TrimSpace(data)

	if data == streamDoneMarker {
		return &llm.RawDelta{Done: true}, nil
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil, llm.NewDecodeError("openai", err)
	}

	delta := &llm.RawDelta{}

	if chunk.Usage != nil {
		usage := llm.NewUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
		delta.Usage = &usage
	}

	if len(chunk.Choices) == 0 {
		if delta.Usage == nil {
			return nil, nil
		}
		return delta, nil
	}

	choice := chunk.Choices[0]
	delta.Text = choice.Delta.Content

	for _, tc := range choice.Delta.ToolCalls {
		slot := "0"
		if tc.Index != nil {
			slot = strconv.Itoa(*tc.Index)
		}
		delta.Tools = append(delta.Tools, llm.ToolCallFragment{
			Slot:      slot,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return delta, nil
}
