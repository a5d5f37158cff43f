// Package llm provides a provider-agnostic abstraction for Large Language
// Model chat APIs.
//
// This package defines the neutral types shared by all providers, along with
// the machinery that normalizes their stream encodings into one event model:
//
// - Client interface: core LLM client functionality
// - Message types: multi-modal message support (text, images)
// - Tool system: tool definitions, registry, and assembled tool calls
// - Stream model: RawDelta decoding, aggregation into StreamEvents
// - Fallback engine: tag-based tool calling for models without native tools
// - Configuration: provider-agnostic configuration from env or file
// - Error handling: standardized error types
//
// Provider implementations are located in separate packages under
// /pkg/providers/ to maintain clean separation of concerns and avoid import
// cycles.
package llm
