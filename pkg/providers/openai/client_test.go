package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/llm"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(llm.ClientConfig{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "test-key",
		BaseURL:  server.URL,
	})
	require.NoError(t, err)
	return client
}

func TestStreamChatCompletionEndToEnd(t *testing.T) {
	stream := "" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Let me check\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_abc\",\"function\":{\"name\":\"get_weather\",\"arguments\":\"\"}}]}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"{\\\"city\\\": \\\"NYC\\\"}\"}}]}}]}\n\n" +
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":7,\"completion_tokens\":11,\"total_tokens\":18}}\n\n" +
		"data: [DONE]\n\n"

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, stream)
	}))
	defer client.Close()

	events, err := client.StreamChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "weather in NYC?")},
	})
	require.NoError(t, err)

	var got []llm.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 5)
	assert.Equal(t, "Let me check", got[0].Text)
	assert.True(t, got[1].IsToolCallStart())
	assert.Equal(t, "call_abc", got[1].CallID)
	require.True(t, got[2].IsToolCallDone())
	assert.JSONEq(t, `{"city": "NYC"}`, got[2].ToolCall.Function.Arguments)
	require.True(t, got[3].IsUsage())
	assert.Equal(t, 7, *got[3].Usage.PromptTokens)
	assert.True(t, got[4].IsDone())
}

func TestStreamChatCompletionTruncatedStream(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"partial\"}}]}\n\n")
	}))
	defer client.Close()

	events, err := client.StreamChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.NoError(t, err)

	var got []llm.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, "partial", got[0].Text)
	require.True(t, got[1].IsError())
	assert.Equal(t, llm.ErrorCodeUnexpectedEndOfStream, got[1].Error.Code)
	assert.True(t, got[2].IsDone())
}

func TestChatCompletionToolRejectionFallsBack(t *testing.T) {
	var requests []map[string]any

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		if _, hasTools := body["tools"]; hasTools {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error": {"message": "this model does not support tools", "type": "invalid_request_error"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"id": "resp-1", "model": "gpt-4o-mini", "choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}], "usage": {"prompt_tokens": 3, "completion_tokens": 1}}`)
	}))
	defer client.Close()

	client.RegisterTool(llm.ToolDefinition{Name: "get_weather"})

	resp, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.GetText())

	require.Len(t, requests, 2)
	assert.Contains(t, requests[0], "tools")
	assert.NotContains(t, requests[1], "tools")
	assert.Equal(t, llm.ToolModeFallback, client.ToolMode())
}

func TestChatCompletionAPIErrorMapping(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "bad key", "type": "authentication_error", "code": "invalid_api_key"}}`)
	}))
	defer client.Close()

	_, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.Error(t, err)

	llmErr, ok := err.(*llm.Error)
	require.True(t, ok)
	assert.Equal(t, "invalid_api_key", llmErr.Code)
	assert.Equal(t, 401, llmErr.StatusCode)
	assert.Equal(t, "bad key", llmErr.Message)
}

func TestChatCompletionFallbackExtractsCalls(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "resp-1", "model": "m", "choices": [{"index": 0, "message": {"role": "assistant", "content": "Sure.\n<tool_call>\n<get_weather>\n<city>NYC</city>\n</get_weather>\n</tool_call>"}, "finish_reason": "stop"}], "usage": {}}`)
	}))
	defer client.Close()

	client.RegisterTool(llm.ToolDefinition{Name: "get_weather"})
	client.SetToolMode(llm.ToolModeFallback)

	resp, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "weather?")},
	})
	require.NoError(t, err)

	choice := resp.Choices[0]
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.Equal(t, "get_weather", choice.Message.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city": "NYC"}`, choice.Message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, llm.FinishReasonToolCalls, choice.FinishReason)
	assert.NotContains(t, choice.Message.GetText(), "tool_call")
}

func TestChatCompletionOmittedUsageStaysUnknown(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "resp-1", "model": "gpt-4o-mini", "choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}]}`)
	}))
	defer client.Close()

	resp, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.NoError(t, err)

	assert.Nil(t, resp.Usage.PromptTokens)
	assert.Nil(t, resp.Usage.CompletionTokens)
	assert.Nil(t, resp.Usage.TotalTokens)
	assert.False(t, resp.Usage.Known())
}

func TestUnsupportedContentRejectedBeforeSending(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the server")
	}))
	defer client.Close()

	// gpt-3.5-turbo has no vision support
	client.model = "gpt-3.5-turbo"

	msg := llm.NewTextMessage(llm.RoleUser, "look")
	msg.AddImageBytes([]byte{1}, "image/png")

	_, err := client.ChatCompletion(context.Background(), llm.ChatRequest{Messages: []llm.Message{msg}})
	require.Error(t, err)

	llmErr, ok := err.(*llm.Error)
	require.True(t, ok)
	assert.Equal(t, llm.ErrorCodeUnsupportedContent, llmErr.Code)
}
