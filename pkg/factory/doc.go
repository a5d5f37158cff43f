// Package factory provides provider registration and client construction
// for the modelmux framework.
//
// This package manages the registration of LLM providers and provides
// factory methods to create clients. When imported, it automatically
// registers all available providers.
//
// Example usage:
//
//	import (
//	    "github.com/modelmux/modelmux/pkg/factory"
//	    "github.com/modelmux/modelmux/pkg/llm"
//	)
//
//	factory := factory.New()
//	client, err := factory.CreateClient(llm.ClientConfig{
//	    Provider: "openai",
//	    Model:    "gpt-4o-mini",
//	    APIKey:   "your-api-key",
//	})
package factory
