// SSE stream decoding for the Anthropic messages API
package anthropic

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/modelmux/modelmux/pkg/llm"
)

// Decoder turns one SSE line of an Anthropic message stream into a neutral
// delta. The API sends typed events; the data payload's type field carries
// the same information as the SSE event-name line, so event-name lines are
// skipped.
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
		return nil, nil
	}

	var payload StreamPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &payload); err != nil {
		return nil, llm.NewDecodeError("anthropic", err)
	}

	switch payload.Type {
	case "message_start":
		if payload.Message != nil && payload.Message.Usage != nil && payload.Message.Usage.InputTokens > 0 {
			prompt := payload.Message.Usage.InputTokens
			return &llm.RawDelta{Usage: &llm.Usage{PromptTokens: &prompt}}, nil
		}
		return nil, nil

	case "content_block_start":
		if payload.ContentBlock != nil && payload.ContentBlock.Type == "tool_use" {
			return &llm.RawDelta{Tools: []llm.ToolCallFragment{{
				Slot: strconv.Itoa(payload.Index),
				ID:   payload.ContentBlock.ID,
				Name: payload.ContentBlock.Name,
			}}}, nil
		}
		return nil, nil

	case "content_block_delta":
		if payload.Delta == nil {
			return nil, nil
		}
		switch payload.Delta.Type {
		case "text_delta":
			return &llm.RawDelta{Text: payload.Delta.Text}, nil
		case "input_json_delta":
			return &llm.RawDelta{Tools: []llm.ToolCallFragment{{
				Slot:      strconv.Itoa(payload.Index),
				Arguments: payload.Delta.PartialJSON,
			}}}, nil
		}
		return nil, nil

	case "content_block_stop":
		return &llm.RawDelta{ToolStop: true}, nil

	case "message_delta":
		if payload.Usage != nil && payload.Usage.OutputTokens > 0 {
			completion := payload.Usage.OutputTokens
			return &llm.RawDelta{Usage: &llm.Usage{CompletionTokens: &completion}}, nil
		}
		return nil, nil

	case "message_stop":
		return &llm.RawDelta{Done: true}, nil

	default:
		// ping and any future event types carry nothing we need
		return nil, nil
	}
}
