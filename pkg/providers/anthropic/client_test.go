package anthropic

import (
	"context"
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
		Provider: "anthropic",
		Model:    "claude-sonnet-4-0",
		APIKey:   "test-key",
		BaseURL:  server.URL,
	})
	require.NoError(t, err)
	return client
}

func TestChatCompletionReportsUsage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		_, _ = io.WriteString(w, `{"id": "msg_1", "model": "claude-sonnet-4-0", "content": [{"type": "text", "text": "ok"}], "stop_reason": "end_turn", "usage": {"input_tokens": 12, "output_tokens": 3}}`)
	}))
	defer client.Close()

	resp, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Choices[0].Message.GetText())
	require.NotNil(t, resp.Usage.PromptTokens)
	assert.Equal(t, 12, *resp.Usage.PromptTokens)
	require.NotNil(t, resp.Usage.TotalTokens)
	assert.Equal(t, 15, *resp.Usage.TotalTokens)
}

func TestChatCompletionOmittedUsageStaysUnknown(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id": "msg_1", "model": "claude-sonnet-4-0", "content": [{"type": "text", "text": "ok"}], "stop_reason": "end_turn"}`)
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
