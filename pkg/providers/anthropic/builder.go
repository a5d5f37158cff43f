// Request construction for the Anthropic messages API
package anthropic

import (
	"encoding/base64"
	"encoding/json"

	"github.com/modelmux/modelmux/pkg/llm"
)

// The messages API requires max_tokens; used when the caller sets none.
const defaultMaxTokens = 4096

// BuildRequest converts a neutral chat request into the Anthropic wire
// format. It is a pure function of its inputs. System-role messages move to
// the top-level system field; tool results become tool_result blocks on a
// user turn, or plain text in fallback mode.
func BuildRequest(req llm.ChatRequest, defs []llm.ToolDefinition, mode llm.ToolMode, model string) (Request, *llm.Error) {
	out := Request{
		Model:       model,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	messages := req.Messages
	fallback := mode == llm.ToolModeFallback && len(defs) > 0
	if fallback {
		messages = llm.InjectFallbackSchema(messages, defs)
	}

	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			if out.System != "" {
				out.System += "\n\n"
			}
			out.System += msg.GetText()
			continue
		}

		converted, err := convertMessage(msg, fallback)
		if err != nil {
			return Request{}, err
		}
		out.Messages = append(out.Messages, converted)
	}

	if !fallback && len(defs) > 0 {
		for _, def := range defs {
			out.Tools = append(out.Tools, Tool{
				Name:        def.Name,
				Description: def.Description,
				InputSchema: def.Schema(),
			})
		}
	}

	return out, nil
}

func convertMessage(msg llm.Message, fallback bool) (Message, *llm.Error) {
	if msg.Role == llm.RoleTool {
		if fallback {
			return Message{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: llm.FallbackToolResultText(msg)}},
			}, nil
		}
		return Message{
			Role: "user",
			Content: []ContentBlock{{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.GetText(),
			}},
		}, nil
	}

	out := Message{Role: string(msg.Role)}

	for _, item := range msg.Content {
		switch c := item.(type) {
		case *llm.TextContent:
			out.Content = append(out.Content, ContentBlock{Type: "text", Text: c.Text})
		case *llm.ImageContent:
			source := &ImageSource{}
			if c.HasData() {
				source.Type = "base64"
				source.MediaType = c.MimeType
				source.Data = base64.StdEncoding.EncodeToString(c.Data)
			} else {
				source.Type = "url"
				source.URL = c.URL
			}
			out.Content = append(out.Content, ContentBlock{Type: "image", Source: source})
		default:
			return Message{}, llm.NewUnsupportedContentError("anthropic", item.Type())
		}
	}

	if msg.HasToolCalls() {
		if fallback {
			for _, call := range msg.ToolCalls {
				encoded, err := llm.EncodeFallbackCall(call)
				if err != nil {
					return Message{}, llm.NewMalformedToolArgsError(call.ID, call.Function.Name, err)
				}
				out.Content = append(out.Content, ContentBlock{Type: "text", Text: encoded})
			}
		} else {
			for _, call := range msg.ToolCalls {
				args := call.Function.Arguments
				if args == "" {
					args = "{}"
				}
				out.Content = append(out.Content, ContentBlock{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: json.RawMessage(args),
				})
			}
		}
	}

	if len(out.Content) == 0 {
		out.Content = []ContentBlock{{Type: "text", Text: ""}}
	}

	return out, nil
}
