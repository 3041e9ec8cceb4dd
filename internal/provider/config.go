package provider

import "fmt"

// ProviderOllama configures the Ollama backend.
type ProviderOllama struct {
	// Host is the Ollama server base URL.
	Host string
	// Model is the Ollama model name (e.g. "llama3").
	Model string
}

// ProviderOpenAI configures the OpenAI backend.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the model name (e.g. "gpt-4o").
	Model string
	// BaseURL overrides the default API endpoint, for OpenAI-compatible
	// servers. Leave empty for api.openai.com.
	BaseURL string
}

// ProviderGemini configures the Google Gemini backend.
type ProviderGemini struct {
	// APIKey is the AI Studio API key.
	APIKey string
	// Model is the Gemini model name (e.g. "gemini-1.5-pro").
	Model string
}

// ProviderArk configures the Ark backend.
type ProviderArk struct {
	// APIKey is the gateway credential.
	APIKey string
	// Model is the model or endpoint ID.
	Model string
	// BaseURL is the gateway endpoint.
	BaseURL string
}

// SharedTuning holds decoding parameters common to all backends.
type SharedTuning struct {
	// MaxTokens caps the tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0). Answers are
	// grounded in retrieved documents, so the default is 0.
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend
	// Ollama holds Ollama-specific settings.
	Ollama ProviderOllama
	// OpenAI holds OpenAI-specific settings.
	OpenAI ProviderOpenAI
	// Gemini holds Gemini-specific settings.
	Gemini ProviderGemini
	// Ark holds Ark-specific settings.
	Ark ProviderArk
	// Tuning holds shared decoding parameters.
	Tuning SharedTuning
}

// Validate checks that the fields required by the selected backend are set,
// naming the environment variable that supplies each missing value.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, gemini, ark", c.Backend)
	}
	return nil
}
