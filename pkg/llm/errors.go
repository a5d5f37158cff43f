// Error types and handling
package llm

import (
	"fmt"
	"strings"
)

// Error codes shared by all providers.
const (
	ErrorCodeUnsupportedContent     = "unsupported_content"
	ErrorCodeDecodeError            = "decode_error"
	ErrorCodeMalformedToolArgs      = "malformed_tool_arguments"
	ErrorCodeUnexpectedEndOfStream  = "unexpected_end_of_stream"
	ErrorCodeFallbackParseAmbiguous = "fallback_parse_ambiguous"
)

// Error represents a standardized LLM error
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewUnsupportedContentError reports a message part that cannot be expressed
// in the target provider's request format.
func NewUnsupportedContentError(provider string, contentType MessageType) *Error {
	return &Error{
		Code:    ErrorCodeUnsupportedContent,
		Message: fmt.Sprintf("content type %q cannot be sent to provider %s", contentType, provider),
		Type:    "invalid_request_error",
	}
}

// NewDecodeError reports a malformed provider stream payload. Decode errors
// are scoped to a single event and never abort the stream.
func NewDecodeError(provider string, cause error) *Error {
	return &Error{
		Code:    ErrorCodeDecodeError,
		Message: fmt.Sprintf("%s: failed to decode stream payload: %v", provider, cause),
		Type:    "stream_error",
	}
}

// NewMalformedToolArgsError reports tool-call argument text that is not valid
// JSON even after repair.
func NewMalformedToolArgsError(callID, toolName string, cause error) *Error {
	return &Error{
		Code:    ErrorCodeMalformedToolArgs,
		Message: fmt.Sprintf("tool call %s (%s): arguments are not valid JSON: %v", callID, toolName, cause),
		Type:    "tool_error",
	}
}

// IsToolRejection reports whether an error looks like the provider refusing
// the structured tool fields, the trigger for switching to fallback mode.
func IsToolRejection(err error) bool {
	llmErr, ok := err.(*Error)
	if !ok || llmErr.StatusCode != 400 {
		return false
	}
	msg := strings.ToLower(llmErr.Message)
	return strings.Contains(msg, "tool") || strings.Contains(msg, "function")
}

// NewUnexpectedEndOfStreamError reports a transport that ended before the
// provider's terminal stream marker.
func NewUnexpectedEndOfStreamError(provider string) *Error {
	return &Error{
		Code:    ErrorCodeUnexpectedEndOfStream,
		Message: fmt.Sprintf("%s: stream ended without a terminal marker", provider),
		Type:    "stream_error",
	}
}
