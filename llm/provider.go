package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider is the interface for text generation.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider   string        `json:"provider"` // azure, openai, ollama, lmstudio, openrouter, groq, xai, gemini, custom
	Model      string        `json:"model"`
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Deployment string        `json:"deployment,omitempty"`  // azure only; defaults to Model
	APIVersion string        `json:"api_version,omitempty"` // azure only
	Timeout    time.Duration `json:"timeout,omitempty"`     // per HTTP request; defaults to 120s
}

// compatVendor describes an OpenAI-compatible endpoint.
type compatVendor struct {
	baseURL string
	prefix  string // API path prefix
	model   string // default model, if any
}

// compatVendors are reached through the shared OpenAI-compatible client.
// Gemini's compatibility endpoint has no /v1 prefix.
var compatVendors = map[string]compatVendor{
	"ollama":     {baseURL: "http://localhost:11434", prefix: "/v1"},
	"lmstudio":   {baseURL: "http://localhost:1234", prefix: "/v1"},
	"openrouter": {baseURL: "https://openrouter.ai/api", prefix: "/v1"},
	"groq":       {baseURL: "https://api.groq.com/openai", prefix: "/v1", model: "llama-3.3-70b-versatile"},
	"xai":        {baseURL: "https://api.x.ai", prefix: "/v1"},
	"gemini":     {baseURL: "https://generativelanguage.googleapis.com/v1beta/openai", prefix: ""},
	"custom":     {prefix: "/v1"},
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "azure":
		return NewAzure(cfg)
	case "openai":
		return NewOpenAI(cfg)
	case "":
		return nil, fmt.Errorf("%w: llm provider not specified", ErrConfig)
	}

	v, ok := compatVendors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown llm provider: %s", ErrConfig, cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = v.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = v.model
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base_url is required for provider %s", ErrConfig, cfg.Provider)
	}
	return &openAICompatProvider{base: newOpenAICompatClient(cfg, v.prefix)}, nil
}

func requestTimeout(cfg Config) time.Duration {
	// Kept generous for local providers (Ollama, LM Studio) which may load
	// models on first request.
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 120 * time.Second
}
