package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 60 * time.Second

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint,
// such as a local LM Studio server.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	log     *slog.Logger
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string // LM Studio accepts any value
	Model   string
	Timeout time.Duration
}

// NewOpenAIProvider creates a provider for the endpoint at cfg.BaseURL.
func NewOpenAIProvider(cfg OpenAIConfig, logger *slog.Logger) *OpenAIProvider {
	if cfg.APIKey == "" {
		cfg.APIKey = "lm-studio"
	}
	if cfg.Model == "" {
		cfg.Model = "local-model"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     logger.With("component", "lmstudio"),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "lmstudio"
}

// Generate sends the prompt as a user message, preceded by the system
// instruction when one is set.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var messages []openai.ChatCompletionMessage
	if opts.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemInstruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		p.log.Error("chat completion failed", "model", p.model, "duration", time.Since(start), "err", err)
		if IsRateLimit(err) {
			return "", &RateLimitError{Provider: p.Name(), StatusCode: http.StatusTooManyRequests, Message: err.Error()}
		}
		return "", fmt.Errorf("lmstudio chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("lmstudio: %w", ErrEmptyResponse)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	p.log.Debug("chat completion",
		"model", p.model,
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"response_length", len(text))
	if text == "" {
		return "", fmt.Errorf("lmstudio: %w", ErrEmptyResponse)
	}
	return text, nil
}
