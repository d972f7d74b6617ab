package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// openAIProvider implements Provider with the go-openai client. It serves
// both api.openai.com and Azure OpenAI deployments.
type openAIProvider struct {
	client *openai.Client
	model  string
	retry  retryPolicy
}

// NewOpenAI creates a provider for the OpenAI API. BaseURL, when set,
// replaces https://api.openai.com/v1.
//
// API key: set via config, DECKDOC_CHAT_API_KEY or OPENAI_API_KEY.
func NewOpenAI(cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api_key is required", ErrConfig)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: requestTimeout(cfg)}
	return &openAIProvider{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		retry:  defaultRetryPolicy,
	}, nil
}

// NewAzure creates a provider for an Azure OpenAI deployment. BaseURL is the
// resource endpoint (https://<resource>.openai.azure.com/). Requests go to
// Deployment, or to Model when no deployment is named.
func NewAzure(cfg Config) (Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: azure endpoint (base_url) is required", ErrConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: azure api_key is required", ErrConfig)
	}
	deployment := cfg.Deployment
	if deployment == "" {
		deployment = cfg.Model
	}
	if deployment == "" {
		return nil, fmt.Errorf("%w: azure deployment is required", ErrConfig)
	}
	if cfg.Model == "" {
		cfg.Model = deployment
	}

	oc := openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
	if cfg.APIVersion != "" {
		oc.APIVersion = cfg.APIVersion
	}
	oc.AzureModelMapperFunc = func(string) string { return deployment }
	oc.HTTPClient = &http.Client{Timeout: requestTimeout(cfg)}

	return &openAIProvider{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		retry:  defaultRetryPolicy,
	}, nil
}

func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	creq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	err := p.retry.do(ctx, "chat/completions", func() (time.Duration, error) {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, creq)
		if err != nil && ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, classifyOpenAIError(err)
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return &ChatResponse{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// classifyOpenAIError maps go-openai errors onto the package sentinels.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return statusError(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return statusError(reqErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
