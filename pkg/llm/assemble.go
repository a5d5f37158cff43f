// Tool-call sealing, shared by the stream aggregator and the
// non-streaming response path
package llm

import (
	"encoding/json"
	"errors"

	"github.com/kaptinlin/jsonrepair"
)

// SealToolCall finalizes an assembled tool call. Empty argument text becomes
// the empty JSON object. Argument text that is not valid JSON gets one
// repair attempt; if repair fails too, the error is scoped to this call and
// the caller keeps processing others.
func SealToolCall(id, name, arguments string) (ToolCall, *Error) {
	call := ToolCall{
		ID:   id,
		Type: "function",
		Function: ToolCallFunction{
			Name:      name,
			Arguments: arguments,
		},
	}

	if arguments == "" {
		call.Function.Arguments = "{}"
		return call, nil
	}

	if json.Valid([]byte(arguments)) {
		return call, nil
	}

	repaired, err := jsonrepair.JSONRepair(arguments)
	if err != nil {
		return ToolCall{}, NewMalformedToolArgsError(id, name, err)
	}
	if !json.Valid([]byte(repaired)) {
		return ToolCall{}, NewMalformedToolArgsError(id, name, errors.New("arguments remain invalid after repair"))
	}
	call.Function.Arguments = repaired
	return call, nil
}

// ParseToolArguments decodes sealed argument text into a generic map
func ParseToolArguments(call ToolCall) (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if call.Function.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return nil, NewMalformedToolArgsError(call.ID, call.Function.Name, err)
	}
	return args, nil
}
