// Request construction for the OpenAI-compatible wire format
package openai

import (
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/modelmux/modelmux/pkg/llm"
)

// BuildRequest converts a neutral chat request into the OpenAI wire format.
// It is a pure function of its inputs: the same history, tool definitions,
// and mode always produce the same request body. In fallback mode the tool
// definitions are rendered into the leading system message instead of the
// structured tools field.
func BuildRequest(req llm.ChatRequest, defs []llm.ToolDefinition, mode llm.ToolMode, model string) (openai.ChatCompletionRequest, *llm.Error) {
	out := openai.ChatCompletionRequest{Model: model}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.Temperature != nil {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.TopP != nil {
		out.TopP = *req.TopP
	}

	messages := req.Messages
	fallback := mode == llm.ToolModeFallback && len(defs) > 0
	if fallback {
		messages = llm.InjectFallbackSchema(messages, defs)
	}

	for _, msg := range messages {
		converted, err := convertMessage(msg, fallback)
		if err != nil {
			return openai.ChatCompletionRequest{}, err
		}
		out.Messages = append(out.Messages, converted)
	}

	if !fallback && len(defs) > 0 {
		for _, def := range defs {
			out.Tools = append(out.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Schema(),
				},
			})
		}
	}

	return out, nil
}

func convertMessage(msg llm.Message, fallback bool) (openai.ChatCompletionMessage, *llm.Error) {
	if msg.Role == llm.RoleTool {
		if fallback {
			return openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: llm.FallbackToolResultText(msg),
			}, nil
		}
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    msg.GetText(),
			ToolCallID: msg.ToolCallID,
		}, nil
	}

	out := openai.ChatCompletionMessage{Role: string(msg.Role)}

	text, parts, err := convertContent(msg.Content)
	if err != nil {
		return out, err
	}

	if msg.HasToolCalls() {
		if fallback {
			// replay earlier fallback calls in the grammar the model used
			for _, call := range msg.ToolCalls {
				encoded, encErr := llm.EncodeFallbackCall(call)
				if encErr != nil {
					return out, llm.NewMalformedToolArgsError(call.ID, call.Function.Name, encErr)
				}
				if text != "" {
					text += "\n"
				}
				text += encoded
			}
		} else {
			for _, call := range msg.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				})
			}
		}
	}

	if len(parts) > 0 {
		if text != "" {
			parts = append([]openai.ChatMessagePart{{
				Type: openai.ChatMessagePartTypeText,
				Text: text,
			}}, parts...)
		}
		out.MultiContent = parts
	} else {
		out.Content = text
	}

	return out, nil
}

// convertContent splits neutral content into plain text and non-text parts.
// Image data becomes a data URL, the OpenAI envelope for inline images.
func convertContent(content []llm.MessageContent) (string, []openai.ChatMessagePart, *llm.Error) {
	var text string
	var parts []openai.ChatMessagePart

	for _, item := range content {
		switch c := item.(type) {
		case *llm.TextContent:
			if text != "" {
				text += "\n"
			}
			text += c.Text
		case *llm.ImageContent:
			url := c.URL
			if c.HasData() {
				url = fmt.Sprintf("data:%s;base64,%s", c.MimeType, base64.StdEncoding.EncodeToString(c.Data))
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url},
			})
		default:
			return "", nil, llm.NewUnsupportedContentError("openai", item.Type())
		}
	}

	return text, parts, nil
}
