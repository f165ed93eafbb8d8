package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Gemini defaults.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultCooldown      = 30 * time.Second
)

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	BaseURL           string
	Model             string
	Keys              []string
	KeyStyle          string
	Timeout           time.Duration
	Cooldown          time.Duration
	MaxRotationCycles int
}

// GeminiProvider calls the Gemini generateContent REST endpoint, rotating
// through its key pool on rate limits.
type GeminiProvider struct {
	baseURL   string
	model     string
	pool      *KeyPool
	client    *http.Client
	timeout   time.Duration
	cooldown  time.Duration
	maxCycles int
	log       *slog.Logger
	sleep     func(context.Context, time.Duration) error
}

// NewGeminiProvider creates a provider. A pool without keys is allowed; calls
// then fail with ErrMissingCredential.
func NewGeminiProvider(cfg GeminiConfig, logger *slog.Logger) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MaxRotationCycles < 1 {
		cfg.MaxRotationCycles = DefaultMaxRotationCycles
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &GeminiProvider{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     strings.TrimPrefix(cfg.Model, "models/"),
		pool:      NewKeyPool(cfg.Keys, cfg.KeyStyle),
		client:    &http.Client{},
		timeout:   cfg.Timeout,
		cooldown:  cfg.Cooldown,
		maxCycles: cfg.MaxRotationCycles,
		log:       logger.With("component", "gemini"),
		sleep:     sleepContext,
	}
	if g.pool.Len() == 0 {
		g.log.Warn("gemini API key not configured; calls will fail")
	}
	return g
}

// WithModel returns a provider for another model sharing the same key pool.
func (g *GeminiProvider) WithModel(model string) *GeminiProvider {
	cp := *g
	cp.model = strings.TrimPrefix(model, "models/")
	return &cp
}

// Name returns the provider name.
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the model name.
func (g *GeminiProvider) Model() string {
	return g.model
}

// Generate runs one logical request. Rate-limited attempts rotate to the next
// key; after every key in the pool has been rate limited once the provider
// sleeps the cooldown and starts another cycle, giving up after the cycle
// budget. Other errors are returned immediately.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if g.pool.Len() == 0 {
		return "", fmt.Errorf("gemini: %w", ErrMissingCredential)
	}

	rot := g.pool.begin(g.maxCycles)
	for {
		text, err := g.call(ctx, rot.key(), prompt, opts)
		if err == nil {
			rot.succeeded()
			return text, nil
		}
		if !IsRateLimit(err) {
			return "", err
		}

		switch rot.rateLimited() {
		case stepRetry:
			g.log.Warn("rate limited, rotating key", "model", g.model, "keys", g.pool.Len())
		case stepCooldown:
			g.log.Warn("all keys rate limited, cooling down", "model", g.model, "cooldown", g.cooldown)
			if err := g.sleep(ctx, g.cooldown); err != nil {
				return "", err
			}
		case stepGiveUp:
			g.log.Error("rate limit persists, giving up", "model", g.model, "cycles", g.maxCycles)
			return "", err
		}
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float32 `json:"temperature"`
	TopP            float32 `json:"topP"`
	TopK            int     `json:"topK"`
	CandidateCount  int     `json:"candidateCount"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *GeminiProvider) call(ctx context.Context, key, prompt string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     opts.Temperature,
			TopP:            0.95,
			TopK:            40,
			CandidateCount:  1,
		},
	}
	if opts.SystemInstruction != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemInstruction}}}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var apiErr geminiError
		_ = json.Unmarshal(payload, &apiErr)
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		if resp.StatusCode == http.StatusTooManyRequests || apiErr.Error.Status == "RESOURCE_EXHAUSTED" {
			return "", &RateLimitError{Provider: g.Name(), StatusCode: resp.StatusCode, Message: msg}
		}
		return "", fmt.Errorf("gemini error %s: %s", resp.Status, msg)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
