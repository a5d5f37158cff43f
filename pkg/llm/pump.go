// Shared line pump driving a decoder and aggregator over a stream body
package llm

import (
	"bufio"
	"context"
	"io"
)

const (
	scanBufferSize    = 64 * 1024
	maxScanBufferSize = 1024 * 1024
)

// PumpStream reads the response body line by line, decodes each line, folds
// the deltas through the aggregator, and hands every resulting event to
// emit. It returns when the terminal marker has been processed, the body is
// exhausted, the context is cancelled, or emit reports the consumer is gone.
// Malformed lines become decode_error events and do not abort the stream.
func PumpStream(ctx context.Context, r io.Reader, dec Decoder, agg *Aggregator, emit func(StreamEvent) bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scanBufferSize), maxScanBufferSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		delta, err := dec.Decode(scanner.Text())
		if err != nil {
			decodeErr, ok := err.(*Error)
			if !ok {
				decodeErr = NewDecodeError(agg.provider, err)
			}
			if !emit(NewErrorEvent(decodeErr)) {
				return
			}
			continue
		}
		if delta == nil {
			continue
		}

		for _, ev := range agg.Push(delta) {
			if !emit(ev) {
				return
			}
		}
		if agg.Done() {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	for _, ev := range agg.Finish() {
		if !emit(ev) {
			return
		}
	}
}
