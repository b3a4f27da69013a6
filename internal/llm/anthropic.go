package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oddsline/ingestion/internal/metrics"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
)

// DefaultAnthropicModel is used when no model is configured
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// Four long sections of 400+ words plus picks
const anthropicMaxTokens = 8192

// AnthropicGenerator generates text through the Messages API
type AnthropicGenerator struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

// NewAnthropicGenerator creates an Anthropic-backed generator
func NewAnthropicGenerator(cfg Config) *AnthropicGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &AnthropicGenerator{
		client:  anthropic.NewClient(opts...),
		model:   model,
		timeout: cfg.Timeout,
	}
}

// Generate sends one system + user exchange and joins the returned text blocks
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordAPICall("anthropic", "error", duration)
		return "", fmt.Errorf("anthropic api error: %w", err)
	}
	metrics.RecordAPICall("anthropic", "success", duration)

	var sb strings.Builder
	for _, block := range message.Content {
		sb.WriteString(block.Text)
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	log.Debug().
		Str("model", g.model).
		Int64("input_tokens", message.Usage.InputTokens).
		Int64("output_tokens", message.Usage.OutputTokens).
		Float64("duration_seconds", duration).
		Msg("Anthropic message received")

	return text, nil
}
