// Wire types for the Ollama chat API
package ollama

import "encoding/json"

// Request is the /api/chat request body
type Request struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Tools    []Tool    `json:"tools,omitempty"`
	Options  *Options  `json:"options,omitempty"`
}

// Message is one conversation turn
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"` // base64-encoded
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation; Ollama sends arguments as a JSON object,
// never fragmented
type ToolCall struct {
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the invoked function and its arguments object
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Tool is a native tool definition
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes the callable function
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Options carries sampling parameters
type Options struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

// ChatResponse is one NDJSON stream line, and also the whole non-streaming
// response body. Usage counters only appear on the final (done) line.
type ChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// ShowRequest is the /api/show request body
type ShowRequest struct {
	Model string `json:"model"`
}

// ShowResponse is the subset of /api/show output the client inspects
type ShowResponse struct {
	Template string `json:"template"`
}
