package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Request is a single system + user prompt exchange
type Request struct {
	System string
	User   string
}

// TextGenerator turns a prompt into a single blob of text.
// The response format is convention only; callers parse it defensively.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrEmptyResponse is returned when the provider answers without any text
var ErrEmptyResponse = errors.New("empty response from text generator")

// Supported providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a text generation provider
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string // empty uses the provider default
	Timeout  time.Duration
}

// New builds the generator named by cfg.Provider
func New(cfg Config) (TextGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s api key is required", cfg.Provider)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIGenerator(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown generator provider: %q", cfg.Provider)
	}
}

// withTimeout bounds a single generation call
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
