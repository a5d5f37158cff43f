// Client for OpenAI-compatible chat completion endpoints
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/modelmux/modelmux/pkg/llm"
)

const chatCompletionsPath = "/chat/completions"

// Client implements llm.Client against any OpenAI-compatible endpoint.
// OpenRouter, DeepSeek, and self-hosted gateways speak this wire format and
// only differ in base URL.
type Client struct {
	providerName string
	model        string
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	logger       *slog.Logger
	tools        *llm.ToolRegistry
	fallback     *llm.FallbackEngine
}

// New creates an OpenAI client from the given configuration
func New(config llm.ClientConfig) (*Client, error) {
	return newClient(config, "openai", llm.DefaultOpenAIBaseURL)
}

// NewOpenRouter creates a client for the OpenRouter gateway, which speaks
// the OpenAI wire format on its own base URL
func NewOpenRouter(config llm.ClientConfig) (*Client, error) {
	return newClient(config, "openrouter", llm.DefaultOpenRouterBaseURL)
}

func newClient(config llm.ClientConfig, providerName, defaultBaseURL string) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s: API key is required", providerName)
	}
	model := config.Model
	if model == "" {
		model = llm.DefaultOpenAIModel
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = llm.DefaultTimeout
	}
	return &Client{
		providerName: providerName,
		model:        model,
		apiKey:       config.APIKey,
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       config.GetLogger(),
		tools:        llm.NewToolRegistry(),
		fallback:     llm.NewFallbackEngine(config.ToolMode),
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
		Provider:          c.providerName,
		MaxTokens:         modelMaxTokens(c.model),
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

// requestTools returns the tool definitions for one request: an explicit
// per-request list wins over the registry
func (c *Client) requestTools(req llm.ChatRequest) []llm.ToolDefinition {
	if len(req.Tools) > 0 {
		return req.Tools
	}
	return c.tools.Definitions()
}

// effectiveMode settles the mode used for one request. Undetermined acts as
// native optimistically; a tool-field rejection flips the engine to fallback
// and the request is retried once.
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
			"provider", c.providerName, "model", c.model)
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

	var wireResp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &wireResp); err != nil {
		return nil, llm.NewDecodeError(c.providerName, err)
	}
	return c.convertResponse(wireResp, parseUsage(body), mode == llm.ToolModeFallback && len(defs) > 0)
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
	wireReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	resp, err := c.open(ctx, wireReq)
	if err != nil && mode == llm.ToolModeNative && len(defs) > 0 && llm.IsToolRejection(err) {
		c.logger.Info("provider rejected native tools, retrying in fallback mode",
			"provider", c.providerName, "model", c.model)
		c.fallback.SetMode(llm.ToolModeFallback)
		mode = llm.ToolModeFallback
		wireReq, buildErr = BuildRequest(req, defs, mode, c.model)
		if buildErr != nil {
			return nil, buildErr
		}
		wireReq.Stream = true
		wireReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
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

		llm.PumpStream(ctx, resp.Body, NewDecoder(), llm.NewAggregator(c.providerName), emit)
	}()

	return ch, nil
}

// parseUsage picks the usage counters out of the raw response body. The wire
// struct cannot distinguish a reported zero from an omitted counter, so each
// counter is decoded as a pointer and stays nil when the endpoint did not
// report it.
func parseUsage(body []byte) llm.Usage {
	var wire struct {
		Usage struct {
			PromptTokens     *int `json:"prompt_tokens"`
			CompletionTokens *int `json:"completion_tokens"`
			TotalTokens      *int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return llm.Usage{}
	}
	return llm.Usage{
		PromptTokens:     wire.Usage.PromptTokens,
		CompletionTokens: wire.Usage.CompletionTokens,
		TotalTokens:      wire.Usage.TotalTokens,
	}
}

// convertResponse maps the wire response back to the neutral model. Native
// tool calls are sealed through the shared assembler; in fallback mode the
// calls are extracted from the response text instead.
func (c *Client) convertResponse(resp openai.ChatCompletionResponse, usage llm.Usage, fallbackActive bool) (*llm.ChatResponse, error) {
	out := &llm.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: usage,
	}

	for _, choice := range resp.Choices {
		msg := llm.Message{Role: llm.RoleAssistant}
		text := choice.Message.Content

		if fallbackActive {
			clean, calls, notice := c.fallback.Extract(text)
			if notice != nil {
				c.logger.Warn("fallback tool-call extraction", "notice", notice.Message)
			}
			text = clean
			msg.ToolCalls = calls
		} else {
			for _, tc := range choice.Message.ToolCalls {
				call, sealErr := llm.SealToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments)
				if sealErr != nil {
					return nil, sealErr
				}
				msg.AddToolCall(call)
			}
		}

		if text != "" {
			msg.SetText(text)
		}

		finishReason := string(choice.FinishReason)
		if msg.HasToolCalls() {
			finishReason = llm.FinishReasonToolCalls
		}
		out.Choices = append(out.Choices, llm.Choice{
			Index:        choice.Index,
			Message:      msg,
			FinishReason: finishReason,
		})
	}

	return out, nil
}

// post sends a non-streaming request and returns the raw response body
func (c *Client) post(ctx context.Context, wireReq openai.ChatCompletionRequest) ([]byte, error) {
	resp, err := c.open(ctx, wireReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// open sends the request and returns the response with its body unread.
// Non-2xx responses are drained and mapped to *llm.Error.
func (c *Client) open(ctx context.Context, wireReq openai.ChatCompletionRequest) (*http.Response, error) {
	payload, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wireErr); err == nil && wireErr.Error.Message != "" {
		code := wireErr.Error.Code
		if code == "" {
			code = "api_error"
		}
		return &llm.Error{
			Code:       code,
			Message:    wireErr.Error.Message,
			Type:       wireErr.Error.Type,
			StatusCode: resp.StatusCode,
		}
	}
	return &llm.Error{
		Code:       "api_error",
		Message:    fmt.Sprintf("%s: request failed with status %d", c.providerName, resp.StatusCode),
		Type:       "api_error",
		StatusCode: resp.StatusCode,
	}
}

func modelMaxTokens(model string) int {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return 128000
	case strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return 200000
	default:
		return 128000
	}
}

func modelSupportsVision(model string) bool {
	return strings.HasPrefix(model, "gpt-4o") ||
		strings.HasPrefix(model, "gpt-4.1") ||
		strings.HasPrefix(model, "o1") ||
		strings.Contains(model, "vision")
}
