// Package ai enriches articles with text-generation providers: summaries,
// title translation, classification and keyword extraction.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Provider errors.
var (
	ErrMissingCredential = errors.New("provider credential not configured")
	ErrEmptyResponse     = errors.New("provider returned no text")
)

// Options are the generation parameters shared by all providers.
// SystemInstruction is ignored by providers that cannot express it.
type Options struct {
	MaxTokens         int
	Temperature       float32
	SystemInstruction string
}

// Provider generates text from a prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// RateLimitError reports that the provider rejected a call for quota or rate
// reasons. Callers may retry with another credential.
type RateLimitError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is a rate-limit signal: a *RateLimitError,
// an OpenAI-compatible API error with status 429, or an error whose text
// mentions a rate limit, quota or RESOURCE_EXHAUSTED.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "resource_exhausted"), strings.Contains(msg, "resource exhausted"):
		return true
	case strings.Contains(msg, "rate") && strings.Contains(msg, "limit"):
		return true
	case strings.Contains(msg, "quota"):
		return true
	}
	return false
}
