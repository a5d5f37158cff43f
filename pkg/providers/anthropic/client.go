// Client for the Anthropic messages API
package anthropic

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

const messagesPath = "/v1/messages"

// Client implements llm.Client against the Anthropic messages API
type Client struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tools      *llm.ToolRegistry
	fallback   *llm.FallbackEngine
}

// New creates an Anthropic client from the given configuration
func New(config llm.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	model := config.Model
	if model == "" {
		model = llm.DefaultAnthropicModel
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = llm.DefaultAnthropicBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = llm.DefaultTimeout
	}
	return &Client{
		model:      model,
		apiKey:     config.APIKey,
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
		Provider:          "anthropic",
		MaxTokens:         200000,
		SupportsTools:     true,
		SupportsVision:    true,
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

func (c *Client) effectiveMode(defs []llm.ToolDefinition) llm.ToolMode {
	if len(defs) == 0 {
		return llm.ToolModeNative
	}
	if c.fallback.Mode() == llm.ToolModeFallback {
		return llm.ToolModeFallback
	}
	return llm.ToolModeNative
}

// ChatCompletion performs a chat completion request
func (c *Client) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	defs := c.requestTools(req)
	if err := llm.CheckContentSupport(req.Messages, c.GetModelInfo()); err != nil {
		return nil, err
	}
	mode := c.effectiveMode(defs)

	wireReq, buildErr := BuildRequest(req, defs, mode, c.model)
	if buildErr != nil {
		return nil, buildErr
	}

	body, err := c.post(ctx, wireReq)
	if err != nil && mode == llm.ToolModeNative && len(defs) > 0 && llm.IsToolRejection(err) {
		c.logger.Info("provider rejected native tools, retrying in fallback mode",
			"provider", "anthropic", "model", c.model)
		c.fallback.SetMode(llm.ToolModeFallback)
		mode = llm.ToolModeFallback
		wireReq, buildErr = BuildRequest(req, defs, mode, c.model)
		if buildErr != nil {
			return nil, buildErr
		}
		body, err = c.post(ctx, wireReq)
	}
	if err != nil {
		return nil, err
	}
	if len(defs) > 0 && mode == llm.ToolModeNative && c.fallback.Mode() == llm.ToolModeUndetermined {
		c.fallback.SetMode(llm.ToolModeNative)
	}

	var wireResp Response
	if err := json.Unmarshal(body, &wireResp); err != nil {
		return nil, llm.NewDecodeError("anthropic", err)
	}
	return c.convertResponse(wireResp, mode == llm.ToolModeFallback && len(defs) > 0)
}

// StreamChatCompletion performs a streaming chat completion request
func (c *Client) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	defs := c.requestTools(req)
	if err := llm.CheckContentSupport(req.Messages, c.GetModelInfo()); err != nil {
		return nil, err
	}
	mode := c.effectiveMode(defs)

	wireReq, buildErr := BuildRequest(req, defs, mode, c.model)
	if buildErr != nil {
		return nil, buildErr
	}
	wireReq.Stream = true

	resp, err := c.open(ctx, wireReq)
	if err != nil && mode == llm.ToolModeNative && len(defs) > 0 && llm.IsToolRejection(err) {
		c.logger.Info("provider rejected native tools, retrying in fallback mode",
			"provider", "anthropic", "model", c.model)
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
	if len(defs) > 0 && mode == llm.ToolModeNative && c.fallback.Mode() == llm.ToolModeUndetermined {
		c.fallback.SetMode(llm.ToolModeNative)
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

		llm.PumpStream(ctx, resp.Body, NewDecoder(), llm.NewAggregator("anthropic"), emit)
	}()

	return ch, nil
}

func (c *Client) convertResponse(resp Response, fallbackActive bool) (*llm.ChatResponse, error) {
	msg := llm.Message{Role: llm.RoleAssistant}
	var text string

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text != "" {
				text += "\n"
			}
			text += block.Text
		case "tool_use":
			call, sealErr := llm.SealToolCall(block.ID, block.Name, string(block.Input))
			if sealErr != nil {
				return nil, sealErr
			}
			msg.AddToolCall(call)
		}
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

	finishReason := convertStopReason(resp.StopReason)
	if msg.HasToolCalls() {
		finishReason = llm.FinishReasonToolCalls
	}

	out := &llm.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []llm.Choice{{
			Message:      msg,
			FinishReason: finishReason,
		}},
	}
	if resp.Usage != nil {
		out.Usage = llm.NewUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return out, nil
}

func convertStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	default:
		return reason
	}
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

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

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
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wireErr); err == nil && wireErr.Error.Message != "" {
		return &llm.Error{
			Code:       wireErr.Error.Type,
			Message:    wireErr.Error.Message,
			Type:       "api_error",
			StatusCode: resp.StatusCode,
		}
	}
	return &llm.Error{
		Code:       "api_error",
		Message:    fmt.Sprintf("anthropic: request failed with status %d", resp.StatusCode),
		Type:       "api_error",
		StatusCode: resp.StatusCode,
	}
}
