// Raw provider stream deltas, the decoder-to-aggregator contract
package llm

// ToolCallFragment is a partial tool-call update extracted from one provider
// stream payload. Slot identifies the provider-native accumulation key (the
// choice tool-call index for OpenAI-style streams, the content block index
// for Anthropic-style streams). ID and Name may arrive on a later fragment
// than the first for a slot; Arguments carries the raw argument text fragment
// exactly as sent.
type ToolCallFragment struct {
	Slot      string
	ID        string
	Name      string
	Arguments string
}

// RawDelta is the provider-neutral result of decoding one stream payload.
// Zero-value fields mean the payload carried nothing of that kind.
type RawDelta struct {
	// Text is an assistant text fragment, forwarded without buffering.
	Text string
	// Tools are partial tool-call updates carried by this payload.
	Tools []ToolCallFragment
	// ToolStop signals that the provider closed its open content blocks and
	// buffered tool calls can be sealed.
	ToolStop bool
	// Usage carries token counters when the provider reported them.
	Usage *Usage
	// Done signals the provider's terminal stream marker.
	Done bool
}

// Decoder turns one line of a provider's stream encoding into a RawDelta.
// A nil delta with a nil error means the line carried no information
// (keep-alives, comments, blank separators) and must be skipped. A non-nil
// error reports a malformed payload; the caller surfaces it as a decode_error
// event and continues with the next line.
type Decoder interface {
	Decode(line string) (*RawDelta, error)
}
