package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
	"docqa/internal/models"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// LLM turns a rendered prompt into generated text.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client adapts a langchaingo model to LLM.
type Client struct {
	model       llms.Model
	name        string
	temperature float64
}

func NewClient(model llms.Model, name string, temperature float64) *Client {
	return &Client{model: model, name: name, temperature: temperature}
}

// New builds the client for the configured provider.
func New(cfg config.LLMConfig) (*Client, error) {
	log.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Str("base_url", cfg.BaseURL).
		Msg("Creating llm client")
	switch cfg.Provider {
	case "", ProviderOpenRouter:
		return NewOpenRouter(cfg)
	case ProviderOllama:
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", models.ErrConfiguration, cfg.Provider)
	}
}

// NewOpenRouter talks to any OpenAI compatible chat endpoint.
func NewOpenRouter(cfg config.LLMConfig) (*Client, error) {
	key := strings.TrimPrefix(cfg.Key, "Bearer ")
	if key == "" {
		return nil, fmt.Errorf("%w: OPENROUTER_API_KEY is required", models.ErrCredentialMissing)
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(key),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openrouter client: %w", err)
	}
	return NewClient(llm, ProviderOpenRouter+"/"+cfg.Model, cfg.SamplingTemperature()), nil
}

func NewOllama(cfg config.LLMConfig) (*Client, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewClient(llm, ProviderOllama+"/"+cfg.Model, cfg.SamplingTemperature()), nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", models.ProviderError(ctx, "generate "+c.name, err)
	}
	return out, nil
}

var thinkTag = regexp.MustCompile(models.ThinkTag)

// StripThinking removes <think> reasoning blocks and surrounding whitespace.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(s, ""))
}
