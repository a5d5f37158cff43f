package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealToolCall(t *testing.T) {
	tests := []struct {
		name      string
		arguments string
		want      string
		wantErr   bool
	}{
		{"valid object", `{"city": "NYC"}`, `{"city": "NYC"}`, false},
		{"empty becomes empty object", "", "{}", false},
		{"repairable trailing comma", `{"city": "NYC",}`, `{"city": "NYC"}`, false},
		{"repairable single quotes", `{'city': 'NYC'}`, `{"city": "NYC"}`, false},
		{"beyond repair", `{{{{`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := SealToolCall("call_1", "get_weather", tt.arguments)
			if tt.wantErr {
				require.NotNil(t, err)
				assert.Equal(t, ErrorCodeMalformedToolArgs, err.Code)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, "call_1", call.ID)
			assert.Equal(t, "function", call.Type)
			assert.Equal(t, "get_weather", call.Function.Name)
			assert.JSONEq(t, tt.want, call.Function.Arguments)
		})
	}
}

func TestParseToolArguments(t *testing.T) {
	call := ToolCall{
		ID:       "call_1",
		Function: ToolCallFunction{Name: "get_weather", Arguments: `{"city": "NYC", "days": 3}`},
	}

	args, err := ParseToolArguments(call)
	require.NoError(t, err)
	assert.Equal(t, "NYC", args["city"])
	assert.Equal(t, float64(3), args["days"])
}

func TestParseToolArgumentsEmpty(t *testing.T) {
	args, err := ParseToolArguments(ToolCall{ID: "call_1"})
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestParseToolArgumentsInvalid(t *testing.T) {
	call := ToolCall{
		ID:       "call_1",
		Function: ToolCallFunction{Name: "broken", Arguments: "not json"},
	}
	_, err := ParseToolArguments(call)
	require.Error(t, err)

	llmErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeMalformedToolArgs, llmErr.Code)
}
