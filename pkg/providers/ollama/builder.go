// Request construction for the Ollama chat API
package ollama

import (
	"encoding/base64"
	"encoding/json"

	"github.com/modelmux/modelmux/pkg/llm"
)

// BuildRequest converts a neutral chat request into the Ollama wire format.
// It is a pure function of its inputs. Images travel base64-encoded in the
// message's images array.
func BuildRequest(req llm.ChatRequest, defs []llm.ToolDefinition, mode llm.ToolMode, model string) (Request, *llm.Error) {
	out := Request{Model: model}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil {
		out.Options = &Options{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
		}
	}

	messages := req.Messages
	fallback := mode == llm.ToolModeFallback && len(defs) > 0
	if fallback {
		messages = llm.InjectFallbackSchema(messages, defs)
	}

	for _, msg := range messages {
		converted, err := convertMessage(msg, fallback)
		if err != nil {
			return Request{}, err
		}
		out.Messages = append(out.Messages, converted)
	}

	if !fallback && len(defs) > 0 {
		for _, def := range defs {
			out.Tools = append(out.Tools, Tool{
				Type: "function",
				Function: ToolFunction{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Schema(),
				},
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
				Content: llm.FallbackToolResultText(msg),
			}, nil
		}
		return Message{
			Role:    "tool",
			Content: msg.GetText(),
		}, nil
	}

	out := Message{Role: string(msg.Role)}

	for _, item := range msg.Content {
		switch c := item.(type) {
		case *llm.TextContent:
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += c.Text
		case *llm.ImageContent:
			if !c.HasData() {
				// the API only takes inline data, not references
				return Message{}, llm.NewUnsupportedContentError("ollama", llm.MessageTypeImage)
			}
			out.Images = append(out.Images, base64.StdEncoding.EncodeToString(c.Data))
		default:
			return Message{}, llm.NewUnsupportedContentError("ollama", item.Type())
		}
	}

	if msg.HasToolCalls() {
		if fallback {
			for _, call := range msg.ToolCalls {
				encoded, err := llm.EncodeFallbackCall(call)
				if err != nil {
					return Message{}, llm.NewMalformedToolArgsError(call.ID, call.Function.Name, err)
				}
				if out.Content != "" {
					out.Content += "\n"
				}
				out.Content += encoded
			}
		} else {
			for _, call := range msg.ToolCalls {
				args := call.Function.Arguments
				if args == "" {
					args = "{}"
				}
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					Function: FunctionCall{
						Name:      call.Function.Name,
						Arguments: json.RawMessage(args),
					},
				})
			}
		}
	}

	return out, nil
}
