// Package provider selects and constructs the LLM chat backend at runtime.
// Supported backends: Ollama, OpenAI, Google Gemini, and Ark (Volcano Engine
// and OpenAI-compatible gateways).
package provider

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects the Ark runtime or any OpenAI-compatible gateway
	// reachable through it.
	BackendArk Backend = "ark"
)

// Factory constructs a chat model from a Config. Implementations must be safe
// to call from multiple goroutines.
type Factory interface {
	// New constructs and returns a ready-to-use chat model for the given config.
	New(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error)
}
