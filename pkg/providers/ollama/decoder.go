// NDJSON stream decoding for the Ollama chat API
package ollama

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelmux/modelmux/pkg/llm"
)

// Decoder turns one NDJSON line of an Ollama chat stream into a neutral
// delta. Tool calls arrive whole on a single line; the decoder assigns each
// one its own slot so the aggregator treats it as an already-complete
// buffer.
type Decoder struct {
	nextSlot int
}

// NewDecoder creates a decoder for one streaming request
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode implements llm.Decoder
func (d *Decoder) Decode(line string) (*llm.RawDelta, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	var resp ChatResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return nil, llm.NewDecodeError("ollama", err)
	}
	if resp.Error != "" {
		return nil, &llm.Error{
			Code:    "api_error",
			Message: "ollama: " + resp.Error,
			Type:    "stream_error",
		}
	}

	delta := &llm.RawDelta{Text: resp.Message.Content}

	for _, tc := range resp.Message.ToolCalls {
		slot := fmt.Sprintf("tc-%d", d.nextSlot)
		d.nextSlot++
		delta.Tools = append(delta.Tools, llm.ToolCallFragment{
			Slot:      slot,
			Name:      tc.Function.Name,
			Arguments: string(tc.Function.Arguments),
		})
	}

	if resp.Done {
		delta.Done = true
		if usage := usageFromCounters(resp.PromptEvalCount, resp.EvalCount); usage.Known() {
			delta.Usage = &usage
		}
	}

	return delta, nil
}
