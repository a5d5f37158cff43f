// Package llm provides abstractions for Large Language Model clients
// stream.go defines the unified streaming event model

package llm

// StreamEventType identifies the kind of a StreamEvent.
type StreamEventType string

const (
	StreamEventTextDelta     StreamEventType = "text_delta"
	StreamEventToolCallStart StreamEventType = "tool_call_start"
	StreamEventToolCallDelta StreamEventType = "tool_call_delta"
	StreamEventToolCallDone  StreamEventType = "tool_call_done"
	StreamEventUsage         StreamEventType = "usage"
	StreamEventDone          StreamEventType = "done"
	StreamEventError         StreamEventType = "error"
)

// StreamEvent is a single event in a streaming response. Events arrive in
// the order the provider produced them; text deltas are never buffered or
// coalesced.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Text      string          `json:"text,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments string          `json:"arguments,omitempty"`
	ToolCall  *ToolCall       `json:"tool_call,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// IsTextDelta returns true if this event carries a text fragment
func (e StreamEvent) IsTextDelta() bool {
	return e.Type == StreamEventTextDelta
}

// IsToolCallStart returns true if this event opens a tool call
func (e StreamEvent) IsToolCallStart() bool {
	return e.Type == StreamEventToolCallStart
}

// IsToolCallDelta returns true if this event carries an argument fragment
func (e StreamEvent) IsToolCallDelta() bool {
	return e.Type == StreamEventToolCallDelta
}

// IsToolCallDone returns true if this event carries a sealed tool call
func (e StreamEvent) IsToolCallDone() bool {
	return e.Type == StreamEventToolCallDone && e.ToolCall != nil
}

// IsUsage returns true if this event carries token usage counters
func (e StreamEvent) IsUsage() bool {
	return e.Type == StreamEventUsage && e.Usage != nil
}

// IsDone returns true if this is the final event of the stream
func (e StreamEvent) IsDone() bool {
	return e.Type == StreamEventDone
}

// IsError returns true if this is an error event
func (e StreamEvent) IsError() bool {
	return e.Type == StreamEventError && e.Error != nil
}

// NewTextDeltaEvent creates a text fragment event
func NewTextDeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: StreamEventTextDelta, Text: text}
}

// NewToolCallStartEvent announces a tool call whose id and name are known
func NewToolCallStartEvent(callID, toolName string) StreamEvent {
	return StreamEvent{Type: StreamEventToolCallStart, CallID: callID, ToolName: toolName}
}

// NewToolCallDeltaEvent carries an argument text fragment for an open call
func NewToolCallDeltaEvent(callID, fragment string) StreamEvent {
	return StreamEvent{Type: StreamEventToolCallDelta, CallID: callID, Arguments: fragment}
}

// NewToolCallDoneEvent carries a fully assembled tool call
func NewToolCallDoneEvent(call ToolCall) StreamEvent {
	return StreamEvent{Type: StreamEventToolCallDone, CallID: call.ID, ToolName: call.Function.Name, ToolCall: &call}
}

// NewUsageEvent carries the token usage counters reported by the provider
func NewUsageEvent(usage Usage) StreamEvent {
	return StreamEvent{Type: StreamEventUsage, Usage: &usage}
}

// NewDoneEvent terminates the event sequence
func NewDoneEvent() StreamEvent {
	return StreamEvent{Type: StreamEventDone}
}

// NewErrorEvent creates a new error stream event
func NewErrorEvent(err *Error) StreamEvent {
	return StreamEvent{Type: StreamEventError, Error: err}
}
