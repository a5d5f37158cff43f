// Tag-based fallback tool calling for models without native tool support
package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ToolMode is the tool-calling mode of a (provider, model) pair
type ToolMode string

const (
	// ToolModeUndetermined means no request has settled the mode yet
	ToolModeUndetermined ToolMode = "undetermined"
	// ToolModeNative uses the provider's structured tool fields
	ToolModeNative ToolMode = "native"
	// ToolModeFallback encodes tools as tagged text in the system message
	ToolModeFallback ToolMode = "fallback"
)

const (
	toolCallOpenTag  = "<tool_call>"
	toolCallCloseTag = "</tool_call>"
)

// FallbackEngine tracks the tool-calling mode for one (provider, model)
// pair and assembles fallback tool calls from model text. The mode starts
// undetermined and is settled lazily on the first request that carries
// tools, unless set explicitly. Call ids issued for fallback calls come from
// a monotonic counter in their own namespace so they can never collide with
// provider-issued ids.
type FallbackEngine struct {
	mu      sync.RWMutex
	mode    ToolMode
	counter int
}

// NewFallbackEngine creates an engine in the given mode. An empty mode
// starts undetermined.
func NewFallbackEngine(mode ToolMode) *FallbackEngine {
	if mode == "" {
		mode = ToolModeUndetermined
	}
	return &FallbackEngine{mode: mode}
}

// Mode returns the current tool-calling mode
func (e *FallbackEngine) Mode() ToolMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetMode overrides the tool-calling mode explicitly
func (e *FallbackEngine) SetMode(mode ToolMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// Reset returns the engine to the undetermined state, forcing the next
// request to re-probe
func (e *FallbackEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ToolModeUndetermined
}

// NextCallID issues a fallback call id from the engine's counter
func (e *FallbackEngine) NextCallID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counter++
	return fmt.Sprintf("fb_call_%d", e.counter)
}

// RenderFallbackSchema renders tool definitions as instruction text for the
// system message. The output is a pure function of the definitions: the same
// definitions render byte-identical text, and each tool appears exactly once
// in definition order.
func RenderFallbackSchema(defs []ToolDefinition) string {
	if len(defs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("You have access to the tools listed below. To call a tool, reply with a block in exactly this form, with nothing else between the tags:\n\n")
	b.WriteString(toolCallOpenTag + "\n<tool_name>\n<parameter_name>value</parameter_name>\n</tool_name>\n" + toolCallCloseTag + "\n\n")
	b.WriteString("Do not wrap the block in code fences. Available tools:\n")

	for _, def := range defs {
		b.WriteString("\n## " + def.Name + "\n")
		if def.Description != "" {
			b.WriteString(def.Description + "\n")
		}
		if len(def.Parameters) > 0 {
			b.WriteString("Parameters:\n")
			for _, p := range def.Parameters {
				b.WriteString("- " + p.Name + " (" + p.Type)
				if p.Required {
					b.WriteString(", required")
				}
				b.WriteString(")")
				if p.Description != "" {
					b.WriteString(": " + p.Description)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("Call template:\n")
		b.WriteString(toolCallOpenTag + "\n<" + def.Name + ">\n")
		for _, p := range def.Parameters {
			b.WriteString("<" + p.Name + ">" + p.Type + " value</" + p.Name + ">\n")
		}
		b.WriteString("</" + def.Name + ">\n" + toolCallCloseTag + "\n")
	}

	return b.String()
}

// InjectFallbackSchema prepends the rendered tool instructions to the
// leading system message, inserting one when the history has none. The
// input slice is not modified.
func InjectFallbackSchema(messages []Message, defs []ToolDefinition) []Message {
	schema := RenderFallbackSchema(defs)
	if schema == "" {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		sys := messages[0].DeepCopy()
		sys.SetText(schema + "\n\n" + messages[0].GetText())
		out = append(out, sys)
		out = append(out, messages[1:]...)
		return out
	}
	out = append(out, NewTextMessage(RoleSystem, schema))
	out = append(out, messages...)
	return out
}

// FallbackToolResultText renders a tool result as plain text for models that
// have no native tool-result type
func FallbackToolResultText(msg Message) string {
	name := msg.ToolName
	if name == "" {
		name = msg.ToolCallID
	}
	return fmt.Sprintf("Tool response from %s: %s", name, msg.GetText())
}

// EncodeFallbackCall renders a tool call in the tag grammar. Argument keys
// are sorted so the output is deterministic.
func EncodeFallbackCall(call ToolCall) (string, error) {
	args, err := ParseToolArguments(call)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(toolCallOpenTag + "\n<" + call.Function.Name + ">\n")
	for _, k := range keys {
		b.WriteString("<" + k + ">")
		switch v := args[k].(type) {
		case string:
			b.WriteString(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			b.Write(encoded)
		}
		b.WriteString("</" + k + ">\n")
	}
	b.WriteString("</" + call.Function.Name + ">\n" + toolCallCloseTag)
	return b.String(), nil
}

// Extract scans model text for well-formed tool-call blocks, removes them,
// and returns the remaining user-visible text plus the assembled calls.
// Malformed or unterminated blocks stay in the text untouched. When
// candidate blocks overlap, the first well-formed block in document order
// wins; the returned notice reports that without failing the extraction.
func (e *FallbackEngine) Extract(text string) (string, []ToolCall, *Error) {
	var (
		clean     strings.Builder
		calls     []ToolCall
		ambiguous bool
	)

	rest := text
	for {
		open := strings.Index(rest, toolCallOpenTag)
		if open < 0 {
			clean.WriteString(rest)
			break
		}

		bodyStart := open + len(toolCallOpenTag)
		closeRel := strings.Index(rest[bodyStart:], toolCallCloseTag)
		if closeRel < 0 {
			// unterminated block, leave it as plain text
			clean.WriteString(rest)
			break
		}

		body := rest[bodyStart : bodyStart+closeRel]
		name, arguments, ok := parseFallbackBody(body)
		if !ok {
			// not a well-formed block, keep the opening tag as text and
			// rescan inside it
			clean.WriteString(rest[:bodyStart])
			rest = rest[bodyStart:]
			continue
		}

		if strings.Contains(body, toolCallOpenTag) {
			ambiguous = true
		}

		call, sealErr := SealToolCall(e.NextCallID(), name, arguments)
		if sealErr != nil {
			// arguments came out of our own grammar, this cannot happen
			clean.WriteString(rest[:bodyStart])
			rest = rest[bodyStart:]
			continue
		}
		calls = append(calls, call)

		clean.WriteString(rest[:open])
		rest = rest[bodyStart+closeRel+len(toolCallCloseTag):]
	}

	var notice *Error
	if ambiguous {
		notice = &Error{
			Code:    ErrorCodeFallbackParseAmbiguous,
			Message: "overlapping tool-call blocks in model output, first well-formed block wins",
			Type:    "fallback_notice",
		}
	}
	return clean.String(), calls, notice
}

// parseFallbackBody parses the inside of a tool-call block: exactly one
// tool element whose children are parameter elements with text values.
func parseFallbackBody(body string) (string, string, bool) {
	s := strings.TrimSpace(body)

	name, inner, ok := unwrapElement(s)
	if !ok {
		return "", "", false
	}

	type param struct {
		name  string
		value string
	}
	var params []param
	seen := map[string]bool{}

	rest := strings.TrimSpace(inner)
	for rest != "" {
		pname, pclose, ok := openingTag(rest)
		if !ok {
			return "", "", false
		}
		end := strings.Index(rest[pclose:], "</"+pname+">")
		if end < 0 {
			return "", "", false
		}
		value := rest[pclose : pclose+end]
		if strings.ContainsAny(value, "<>") || seen[pname] {
			return "", "", false
		}
		seen[pname] = true
		params = append(params, param{pname, strings.TrimSpace(value)})
		rest = strings.TrimSpace(rest[pclose+end+len("</"+pname+">"):])
	}

	var args strings.Builder
	args.WriteByte('{')
	for i, p := range params {
		if i > 0 {
			args.WriteByte(',')
		}
		key, _ := json.Marshal(p.name)
		args.Write(key)
		args.WriteByte(':')
		args.WriteString(encodeFallbackValue(p.value))
	}
	args.WriteByte('}')
	return name, args.String(), true
}

// unwrapElement strips one enclosing <name>...</name> element
func unwrapElement(s string) (string, string, bool) {
	name, after, ok := openingTag(s)
	if !ok {
		return "", "", false
	}
	closing := "</" + name + ">"
	if !strings.HasSuffix(s, closing) {
		return "", "", false
	}
	return name, s[after : len(s)-len(closing)], true
}

// openingTag parses a leading <ident> and returns the identifier and the
// offset just past the tag
func openingTag(s string) (string, int, bool) {
	if len(s) < 3 || s[0] != '<' {
		return "", 0, false
	}
	end := strings.IndexByte(s, '>')
	if end < 2 {
		return "", 0, false
	}
	name := s[1:end]
	if !isTagIdent(name) {
		return "", 0, false
	}
	return name, end + 1, true
}

func isTagIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9', r == '-':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// encodeFallbackValue turns a parameter's text into a JSON value. Text that
// already reads as a JSON literal keeps its type, everything else becomes a
// string.
func encodeFallbackValue(v string) string {
	if v != "" && json.Valid([]byte(v)) {
		return v
	}
	quoted, _ := json.Marshal(v)
	return string(quoted)
}

// WrapStreamEmit adapts an emit function for fallback mode. Streamed text
// passes through a StreamingTagFilter so tool-call blocks never reach the
// consumer as text; at the end of the stream, completed blocks become
// synthetic tool-call events and text the filter was still holding is
// released unchanged. Synthesis runs on the first usage or done event so the
// tool-call events precede usage in the emitted order.
func (e *FallbackEngine) WrapStreamEmit(emit func(StreamEvent) bool, logger *slog.Logger) func(StreamEvent) bool {
	filter := &StreamingTagFilter{}
	var full strings.Builder
	synthesized := false

	synthesize := func() bool {
		synthesized = true
		if held := filter.Flush(); held != "" {
			if !emit(NewTextDeltaEvent(held)) {
				return false
			}
		}
		_, calls, notice := e.Extract(full.String())
		if notice != nil && logger != nil {
			logger.Warn("fallback tool-call extraction", "notice", notice.Message)
		}
		for _, call := range calls {
			if !emit(NewToolCallStartEvent(call.ID, call.Function.Name)) {
				return false
			}
			if !emit(NewToolCallDoneEvent(call)) {
				return false
			}
		}
		return true
	}

	return func(ev StreamEvent) bool {
		switch {
		case ev.IsTextDelta():
			full.WriteString(ev.Text)
			if visible := filter.Feed(ev.Text); visible != "" {
				return emit(NewTextDeltaEvent(visible))
			}
			return true
		case ev.IsUsage(), ev.IsDone():
			if !synthesized && !synthesize() {
				return false
			}
		}
		return emit(ev)
	}
}

// StreamingTagFilter withholds suspected tool-call blocks from streamed
// user-visible text. Text that turns out not to open a block is released
// unchanged; completed blocks are swallowed (the caller extracts them from
// the accumulated text at stream end); text held when the stream ends is
// released by Flush so unterminated blocks stay visible as plain text.
type StreamingTagFilter struct {
	pending []byte
	inBlock bool
}

// Feed pushes a text fragment through the filter and returns the part that
// is safe to show
func (f *StreamingTagFilter) Feed(chunk string) string {
	f.pending = append(f.pending, chunk...)

	var out []byte
	for {
		if f.inBlock {
			// pending starts at the block's opening tag
			idx := strings.Index(string(f.pending[len(toolCallOpenTag):]), toolCallCloseTag)
			if idx < 0 {
				break
			}
			f.pending = f.pending[len(toolCallOpenTag)+idx+len(toolCallCloseTag):]
			f.inBlock = false
			continue
		}

		lt := strings.IndexByte(string(f.pending), '<')
		if lt < 0 {
			out = append(out, f.pending...)
			f.pending = f.pending[:0]
			break
		}

		out = append(out, f.pending[:lt]...)
		f.pending = f.pending[lt:]

		rest := string(f.pending)
		switch {
		case strings.HasPrefix(rest, toolCallOpenTag):
			f.inBlock = true
		case strings.HasPrefix(toolCallOpenTag, rest):
			// could still become the opening tag, hold it
			return string(out)
		default:
			out = append(out, '<')
			f.pending = f.pending[1:]
		}
	}

	return string(out)
}

// Flush releases whatever the filter is still holding
func (f *StreamingTagFilter) Flush() string {
	out := string(f.pending)
	f.pending = f.pending[:0]
	f.inBlock = false
	return out
}
