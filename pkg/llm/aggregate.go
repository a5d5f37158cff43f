// Stream aggregation: raw provider deltas to unified events
package llm

import (
	"fmt"
	"strconv"
)

// toolCallBuffer accumulates one tool call's fragments under a provider slot
type toolCallBuffer struct {
	id        string
	name      string
	arguments []byte
	announced bool
}

// Aggregator folds a sequence of RawDeltas into the unified StreamEvent
// sequence. Events are produced in strict arrival order; text fragments pass
// through immediately while tool-call fragments accumulate in slot-keyed
// buffers until sealed. An Aggregator belongs to a single request and is not
// safe for concurrent use.
type Aggregator struct {
	provider string
	slots    map[string]*toolCallBuffer
	order    []string
	usage    Usage
	hasUsage bool
	nextID   int
	done     bool
}

// NewAggregator creates an aggregator for one streaming request
func NewAggregator(provider string) *Aggregator {
	return &Aggregator{
		provider: provider,
		slots:    make(map[string]*toolCallBuffer),
	}
}

// Done reports whether the terminal marker has been observed
func (a *Aggregator) Done() bool {
	return a.done
}

// Push folds one decoded delta and returns the events it produced
func (a *Aggregator) Push(d *RawDelta) []StreamEvent {
	if d == nil || a.done {
		return nil
	}

	var events []StreamEvent

	if d.Text != "" {
		events = append(events, NewTextDeltaEvent(d.Text))
	}

	for _, frag := range d.Tools {
		events = append(events, a.pushFragment(frag)...)
	}

	if d.Usage != nil {
		a.usage.Merge(*d.Usage)
		a.hasUsage = true
	}

	if d.ToolStop {
		events = append(events, a.sealOpen()...)
	}

	if d.Done {
		a.done = true
		events = append(events, a.sealOpen()...)
		if a.hasUsage {
			events = append(events, NewUsageEvent(a.usage))
		}
		events = append(events, NewDoneEvent())
	}

	return events
}

func (a *Aggregator) pushFragment(frag ToolCallFragment) []StreamEvent {
	slot := frag.Slot
	if slot == "" {
		slot = strconv.Itoa(len(a.order))
	}

	buf, ok := a.slots[slot]
	if !ok {
		buf = &toolCallBuffer{}
		a.slots[slot] = buf
		a.order = append(a.order, slot)
	}

	if frag.ID != "" {
		buf.id = frag.ID
	}
	if frag.Name != "" {
		buf.name = frag.Name
	}

	var events []StreamEvent
	if !buf.announced && buf.name != "" {
		if buf.id == "" {
			buf.id = a.generateCallID()
		}
		buf.announced = true
		events = append(events, NewToolCallStartEvent(buf.id, buf.name))
		// replay argument text that arrived before the name was known
		if len(buf.arguments) > 0 {
			events = append(events, NewToolCallDeltaEvent(buf.id, string(buf.arguments)))
		}
	}

	if frag.Arguments != "" {
		buf.arguments = append(buf.arguments, frag.Arguments...)
		if buf.announced {
			events = append(events, NewToolCallDeltaEvent(buf.id, frag.Arguments))
		}
	}

	return events
}

// sealOpen seals every open buffer in slot arrival order. A call whose
// argument text cannot be parsed produces an error event scoped to that call
// and does not affect the others.
func (a *Aggregator) sealOpen() []StreamEvent {
	var events []StreamEvent
	for _, slot := range a.order {
		buf, ok := a.slots[slot]
		if !ok {
			continue
		}
		delete(a.slots, slot)

		if buf.id == "" {
			buf.id = a.generateCallID()
		}
		call, sealErr := SealToolCall(buf.id, buf.name, string(buf.arguments))
		if sealErr != nil {
			events = append(events, NewErrorEvent(sealErr))
			continue
		}
		events = append(events, NewToolCallDoneEvent(call))
	}
	a.order = a.order[:0]
	return events
}

// Finish ends aggregation when the transport is exhausted. If the provider
// never sent its terminal marker, residual buffers are sealed and the
// sequence ends with unexpected_end_of_stream followed by done.
func (a *Aggregator) Finish() []StreamEvent {
	if a.done {
		return nil
	}
	a.done = true

	events := a.sealOpen()
	if a.hasUsage {
		events = append(events, NewUsageEvent(a.usage))
	}
	events = append(events, NewErrorEvent(NewUnexpectedEndOfStreamError(a.provider)))
	events = append(events, NewDoneEvent())
	return events
}

func (a *Aggregator) generateCallID() string {
	a.nextID++
	return fmt.Sprintf("call_%d", a.nextID)
}
