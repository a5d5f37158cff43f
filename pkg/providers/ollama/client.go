// Client for a local or remote Ollama server
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelmux/modelmux/pkg/llm"
)

const (
	chatPath = "/api/chat"
	showPath = "/api/show"
)

// Client implements llm.Client against the Ollama HTTP API. Whether the
// loaded model supports native tool calling depends on its prompt template,
// so the tool-calling mode is probed lazily on the first request that
// carries tools.
type Client struct {
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tools      *llm.ToolRegistry
	fallback   *llm.FallbackEngine
}

// New creates an Ollama client from the given configuration
func New(config llm.ClientConfig) (*Client, error) {
	model := config.Model
	if model == "" {
		model = llm.DefaultOllamaModel
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = llm.DefaultOllamaBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = llm.DefaultOllamaTimeout
	}
	return &Client{
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     config.GetLogger(),
		tools:      llm.NewToolRegistry(),
		fallback:   llm.NewFallbackEngine(config.ToolMode),
	}, nil
}

// RegisterTool adds or replaces a tool definition on the client
func (c *Client) RegisterTool(def llm.ToolDefinition) {
	c.tools.Register(def)
}

// ToolMode returns the current tool-calling mode
func (c *Client) ToolMode() llm.ToolMode {
	return c.fallback.Mode()
}

// SetToolMode overrides the tool-calling mode
func (c *Client) SetToolMode(mode llm.ToolMode) {
	c.fallback.SetMode(mode)
}

// GetModelInfo returns information about the model being used
func (c *Client) GetModelInfo() llm.ModelInfo {
	return llm.ModelInfo{
		Name:              c.model,
		Provider:          "ollama",
		MaxTokens:         8192,
		SupportsTools:     true,
		SupportsVision:    modelSupportsVision(c.model),
		SupportsStreaming: true,
	}
}

// Close cleans up any resources used by the client
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) requestTools(req llm.ChatRequest) []llm.ToolDefinition {
	if len(req.Tools) > 0 {
		return req.Tools
	}
	return c.tools.Definitions()
}

// resolveMode settles the tool-calling mode for one request, probing the
// model's template on the first request that carries tools
func (c *Client) resolveMode(ctx context.Context, defs []llm.ToolDefinition) llm.ToolMode {
	if len(defs) == 0 {
		return llm.ToolModeNative
	}
	mode := c.fallback.Mode()
	if mode != llm.ToolModeUndetermined {
		return mode
	}

	mode = llm.ToolModeFallback
	if c.probeNativeTools(ctx) {
		mode = llm.ToolModeNative
	}
	c.logger.Info("determined tool-calling mode", "provider", "ollama", "model", c.model, "mode", mode)
	c.fallback.SetMode(mode)
	return mode
}

// probeNativeTools asks /api/show for the model's prompt template; a
// template that references .Tools can render native tool calls
func (c *Client) probeNativeTools(ctx context.Context) bool {
	payload, err := json.Marshal(ShowRequest{Model: c.model})
	if err != nil {
		return false
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+showPath, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var show ShowResponse
	if err := json.NewDecoder(resp.Body).Decode(&show); err != nil {
		return false
	}
	return strings.Contains(show.Template, ".Tools")
}

// ChatCompletion performs a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	defs := c.requestTools(req)
	if err := llm.CheckContentSupport(req.Messages, c.GetModelInfo()); err != nil {
		return nil, err
	}
	mode := c.resolveMode(ctx, defs)

	wireReq, buildErr := BuildRequest(req, defs, mode, c.model)
	if buildErr != nil {
		return nil, buildErr
	}
	wireReq.Stream = false

	body, err := c.post(ctx, wireReq)
	if err != nil && mode == llm.ToolModeNative && len(defs) > 0 && llm.IsToolRejection(err) {
		c.logger.Info("provider rejected native tools, retrying in fallback mode",
			"provider", "ollama", "model", c.model)
		c.fallback.SetMode(llm.ToolModeFallback)
		mode = llm.ToolModeFallback
		wireReq, buildErr = BuildRequest(req, defs, mode, c.model)
		if buildErr != nil {
			return nil, buildErr
		}
		wireReq.Stream = false
		body, err = c.post(ctx, wireReq)
	}
	if err != nil {
		return nil, err
	}

	var wireResp ChatResponse
	if err := json.Unmarshal(body, &wireResp); err != nil {
		return nil, llm.NewDecodeError("ollama", err)
	}
	return c.convertResponse(wireResp, mode == llm.ToolModeFallback && len(defs) > 0)
}

// StreamChatCompletion performs a streaming chat completion request
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	defs := c.requestTools(req)
	if err := llm.CheckContentSupport(req.Messages, c.GetModelInfo()); err != nil {
		return nil, err
	}
	mode := c.resolveMode(ctx, defs)

	wireReq, buildErr := BuildRequest(req, defs, mode, c.model)
	if buildErr != nil {
		return nil, buildErr
	}
	wireReq.Stream = true

	resp, err := c.open(ctx, wireReq)
	if err != nil && mode == llm.ToolModeNative && len(defs) > 0 && llm.IsToolRejection(err) {
		c.logger.Info("provider rejected native tools, retrying in fallback mode",
			"provider", "ollama", "model", c.model)
		c.fallback.SetMode(llm.ToolModeFallback)
		mode = llm.ToolModeFallback
		wireReq, buildErr = BuildRequest(req, defs, mode, c.model)
		if buildErr != nil {
			return nil, buildErr
		}
		wireReq.Stream = true
		resp, err = c.open(ctx, wireReq)
	}
	if err != nil {
		return nil, err
	}

	fallbackActive := mode == llm.ToolModeFallback && len(defs) > 0

	ch := make(chan llm.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		emit := func(ev llm.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if fallbackActive {
			emit = c.fallback.WrapStreamEmit(emit, c.logger)
		}

		llm.PumpStream(ctx, resp.Body, NewDecoder(), llm.NewAggregator("ollama"), emit)
	}()

	return ch, nil
}

func (c *Client) convertResponse(resp ChatResponse, fallbackActive bool) (*llm.ChatResponse, error) {
	msg := llm.Message{Role: llm.RoleAssistant}
	text := resp.Message.Content

	for i, tc := range resp.Message.ToolCalls {
		call, sealErr := llm.SealToolCall(fmt.Sprintf("call_%d", i+1), tc.Function.Name, string(tc.Function.Arguments))
		if sealErr != nil {
			return nil, sealErr
		}
		msg.AddToolCall(call)
	}

	if fallbackActive {
		clean, calls, notice := c.fallback.Extract(text)
		if notice != nil {
			c.logger.Warn("fallback tool-call extraction", "notice", notice.Message)
		}
		text = clean
		msg.ToolCalls = append(msg.ToolCalls, calls...)
	}

	if text != "" {
		msg.SetText(text)
	}

	finishReason := llm.FinishReasonStop
	if msg.HasToolCalls() {
		finishReason = llm.FinishReasonToolCalls
	}

	return &llm.ChatResponse{
		Model: resp.Model,
		Choices: []llm.Choice{{
			Message:      msg,
			FinishReason: finishReason,
		}},
		Usage: usageFromCounters(resp.PromptEvalCount, resp.EvalCount),
	}, nil
}

// usageFromCounters maps the eval counters to usage. The API reports a
// missing counter as zero, so each one is set individually and the total is
// derived only when both are known.
func usageFromCounters(prompt, completion int) llm.Usage {
	var u llm.Usage
	if prompt > 0 {
		u.PromptTokens = &prompt
	}
	if completion > 0 {
		u.CompletionTokens = &completion
	}
	if u.PromptTokens != nil && u.CompletionTokens != nil {
		total := prompt + completion
		u.TotalTokens = &total
	}
	return u
}

func (c *Client) post(ctx context.Context, wireReq Request) ([]byte, error) {
	resp, err := c.open(ctx, wireReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) open(ctx context.Context, wireReq Request) (*http.Response, error) {
	payload, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.apiError(resp)
	}
	return resp, nil
}

func (c *Client) apiError(resp *http.Response) *llm.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wireErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wireErr); err == nil && wireErr.Error != "" {
		return &llm.Error{
			Code:       "api_error",
			Message:    "ollama: " + wireErr.Error,
			Type:       "api_error",
			StatusCode: resp.StatusCode,
		}
	}
	return &llm.Error{
		Code:       "api_error",
		Message:    fmt.Sprintf("ollama: request failed with status %d", resp.StatusCode),
		Type:       "api_error",
		StatusCode: resp.StatusCode,
	}
}

func modelSupportsVision(model string) bool {
	return strings.Contains(model, "llava") ||
		strings.Contains(model, "vision") ||
		strings.Contains(model, "moondream") ||
		strings.Contains(model, "bakllava")
}
