// Client interface implemented by every provider adapter
package llm

import "context"

// Client defines the core interface that all LLM clients must implement.
//
// Streaming sends events on a channel owned by the client: one producer
// goroutine per request writes it and closes it after the final event.
// Cancelling the context releases the underlying connection promptly; no
// partial tool-call state survives a cancelled stream.
type Client interface {
	// ChatCompletion performs a chat completion request
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// StreamChatCompletion performs a streaming chat completion request
	StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)

	// RegisterTool adds or replaces a tool definition on the client
	RegisterTool(def ToolDefinition)

	// ToolMode returns the current tool-calling mode for this client's model
	ToolMode() ToolMode

	// SetToolMode overrides the tool-calling mode (ToolModeUndetermined
	// forces re-determination on the next request)
	SetToolMode(mode ToolMode)

	// GetModelInfo returns information about the model being used
	GetModelInfo() ModelInfo

	// Close cleans up any resources used by the client
	Close() error
}
