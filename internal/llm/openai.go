package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oddsline/ingestion/internal/metrics"

	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator generates text through the chat completions API
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIGenerator creates an OpenAI-backed generator
func NewOpenAIGenerator(cfg Config) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: cfg.Timeout,
	}
}

// Generate sends one system + user exchange and returns the first choice
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordAPICall("openai", "error", duration)
		return "", fmt.Errorf("openai api error: %w", err)
	}
	metrics.RecordAPICall("openai", "success", duration)

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	log.Debug().
		Str("model", g.model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Float64("duration_seconds", duration).
		Msg("OpenAI completion received")

	return resp.Choices[0].Message.Content, nil
}
