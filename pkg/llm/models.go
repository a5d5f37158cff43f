// Model information and capabilities
package llm

// ModelInfo contains information about the model
type ModelInfo struct {
	Name              string `json:"name"`
	Provider          string `json:"provider"`
	MaxTokens         int    `json:"max_tokens"`
	SupportsTools     bool   `json:"supports_tools"`
	SupportsVision    bool   `json:"supports_vision"`
	SupportsStreaming bool   `json:"supports_streaming"`
}

// CheckContentSupport verifies that every content part of every message can
// be represented for the given model. Returns an unsupported_content error
// for the first part that cannot.
func CheckContentSupport(messages []Message, info ModelInfo) *Error {
	for _, msg := range messages {
		for _, content := range msg.Content {
			switch content.Type() {
			case MessageTypeText:
			case MessageTypeImage:
				if !info.SupportsVision {
					return NewUnsupportedContentError(info.Provider, MessageTypeImage)
				}
			default:
				return NewUnsupportedContentError(info.Provider, content.Type())
			}
		}
	}
	return nil
}
