// Scripted in-memory client for tests and examples
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modelmux/modelmux/pkg/llm"
)

// Client implements the llm.Client interface for testing. Responses and
// stream scripts are consumed in the order they were added; when the script
// runs out, a canned echo response is produced instead.
type Client struct {
	mu            sync.Mutex
	modelInfo     llm.ModelInfo
	responses     []llm.ChatResponse
	responseIndex int
	errors        []error
	errorIndex    int
	callLog       []llm.ChatRequest
	streams       [][]llm.StreamEvent
	streamIndex   int
	tools         *llm.ToolRegistry
	fallback      *llm.FallbackEngine
	closed        bool
}

// NewClient creates a new mock LLM client for testing
func NewClient(modelName, provider string) (*Client, error) {
	return &Client{
		modelInfo: llm.ModelInfo{
			Name:              modelName,
			Provider:          provider,
			MaxTokens:         4096,
			SupportsTools:     true,
			SupportsVision:    false,
			SupportsStreaming: true,
		},
		tools:    llm.NewToolRegistry(),
		fallback: llm.NewFallbackEngine(llm.ToolModeNative),
	}, nil
}

// AddResponse queues a scripted chat completion response
func (m *Client) AddResponse(resp llm.ChatResponse) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m
}

// AddTextResponse queues a plain text response
func (m *Client) AddTextResponse(text string) *Client {
	return m.AddResponse(llm.ChatResponse{
		ID:    fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Model: m.modelInfo.Name,
		Choices: []llm.Choice{{
			Message:      llm.NewTextMessage(llm.RoleAssistant, text),
			FinishReason: llm.FinishReasonStop,
		}},
		Usage: llm.NewUsage(10, 10),
	})
}

// AddToolCallResponse queues a response that requests a tool execution
func (m *Client) AddToolCallResponse(callID, toolName, arguments string) *Client {
	msg := llm.Message{Role: llm.RoleAssistant}
	msg.AddToolCall(llm.ToolCall{
		ID:   callID,
		Type: "function",
		Function: llm.ToolCallFunction{
			Name:      toolName,
			Arguments: arguments,
		},
	})
	return m.AddResponse(llm.ChatResponse{
		ID:    fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Model: m.modelInfo.Name,
		Choices: []llm.Choice{{
			Message:      msg,
			FinishReason: llm.FinishReasonToolCalls,
		}},
		Usage: llm.NewUsage(10, 5),
	})
}

// AddError queues an error to be returned instead of a response
func (m *Client) AddError(err error) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
	return m
}

// AddStream queues a scripted event sequence for StreamChatCompletion
func (m *Client) AddStream(events []llm.StreamEvent) *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams = append(m.streams, events)
	return m
}

// AddTextStream queues a stream that emits the text in fixed-size chunks
// followed by a done event
func (m *Client) AddTextStream(text string, chunkSize int) *Client {
	var events []llm.StreamEvent
	for i := 0; i < len(text); i += chunkSize {
		end := i + chunkSize
		if end > len(text) {
			end = len(text)
		}
		events = append(events, llm.NewTextDeltaEvent(text[i:end]))
	}
	events = append(events, llm.NewDoneEvent())
	return m.AddStream(events)
}

// CallLog returns the requests the client has received
func (m *Client) CallLog() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.ChatRequest, len(m.callLog))
	copy(out, m.callLog)
	return out
}

// Reset clears all scripted responses and the call log
func (m *Client) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = nil
	m.responseIndex = 0
	m.errors = nil
	m.errorIndex = 0
	m.streams = nil
	m.streamIndex = 0
	m.callLog = nil
}

// ChatCompletion returns the next scripted response or error
func (m *Client) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.callLog = append(m.callLog, req)

	if m.errorIndex < len(m.errors) {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return nil, err
	}

	if m.responseIndex < len(m.responses) {
		resp := m.responses[m.responseIndex]
		m.responseIndex++
		return &resp, nil
	}

	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].GetText()
	}
	return &llm.ChatResponse{
		ID:    fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Model: m.modelInfo.Name,
		Choices: []llm.Choice{{
			Message:      llm.NewTextMessage(llm.RoleAssistant, "mock response to: "+last),
			FinishReason: llm.FinishReasonStop,
		}},
		Usage: llm.NewUsage(5, 5),
	}, nil
}

// StreamChatCompletion replays the next scripted event sequence
func (m *Client) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.callLog = append(m.callLog, req)

	var events []llm.StreamEvent
	if m.streamIndex < len(m.streams) {
		events = m.streams[m.streamIndex]
		m.streamIndex++
	} else {
		events = []llm.StreamEvent{
			llm.NewTextDeltaEvent("mock stream"),
			llm.NewDoneEvent(),
		}
	}
	m.mu.Unlock()

	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// RegisterTool adds or replaces a tool definition on the client
func (m *Client) RegisterTool(def llm.ToolDefinition) {
	m.tools.Register(def)
}

// RegisteredTools returns the definitions registered so far
func (m *Client) RegisteredTools() []llm.ToolDefinition {
	return m.tools.Definitions()
}

// ToolMode returns the current tool-calling mode
func (m *Client) ToolMode() llm.ToolMode {
	return m.fallback.Mode()
}

// SetToolMode overrides the tool-calling mode
func (m *Client) SetToolMode(mode llm.ToolMode) {
	m.fallback.SetMode(mode)
}

// GetModelInfo returns information about the model being used
func (m *Client) GetModelInfo() llm.ModelInfo {
	return m.modelInfo
}

// Close marks the client closed
func (m *Client) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called
func (m *Client) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
