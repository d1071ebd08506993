package embedding

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings/cybertron"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docqa/internal/config"
	"docqa/internal/models"
)

const (
	ProviderOpenAI    = "openai"
	ProviderCybertron = "cybertron"
	ProviderOllama    = "ollama"
	ProviderAuto      = "auto"
)

// New picks the embedding provider once at startup. With provider "auto" the
// remote provider is used when a key is present, otherwise the local one.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	provider := cfg.Provider
	if provider == "" || provider == ProviderAuto {
		provider = cfg.Local
		if cfg.Key != "" {
			provider = ProviderOpenAI
		}
	}
	log.Info().Str("provider", provider).Msg("Selected embedding provider")

	switch provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderCybertron:
		return NewCybertron(cfg)
	case ProviderOllama:
		return NewOllama(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrConfiguration, provider)
	}
}

// Select returns the provider New would pick for cfg without constructing it.
func Select(cfg config.EmbeddingConfig) models.EmbedderIdentity {
	switch {
	case cfg.Provider == ProviderOpenAI, (cfg.Provider == "" || cfg.Provider == ProviderAuto) && cfg.Key != "":
		return models.EmbedderIdentity{Provider: ProviderOpenAI, Model: cfg.Model}
	case cfg.Provider == ProviderCybertron, cfg.Provider == ProviderOllama:
		return models.EmbedderIdentity{Provider: cfg.Provider, Model: cfg.LocalModel}
	default:
		return models.EmbedderIdentity{Provider: cfg.Local, Model: cfg.LocalModel}
	}
}

func NewOpenAI(cfg config.EmbeddingConfig) (*ClientEmbedder, error) {
	key := strings.TrimPrefix(cfg.Key, "Bearer ")
	if key == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is required for the openai embedding provider", models.ErrCredentialMissing)
	}
	opts := []openai.Option{
		openai.WithToken(key),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai embeddings: %w", err)
	}
	return NewClientEmbedder(models.EmbedderIdentity{Provider: ProviderOpenAI, Model: cfg.Model}, llm, cfg.BatchSize)
}

func NewCybertron(cfg config.EmbeddingConfig) (*ClientEmbedder, error) {
	client, err := cybertron.NewCybertron(
		cybertron.WithModel(cfg.LocalModel),
		cybertron.WithModelsDir(cfg.ModelsDir),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load local model %s: %w", cfg.LocalModel, err)
	}
	return NewClientEmbedder(models.EmbedderIdentity{Provider: ProviderCybertron, Model: cfg.LocalModel}, client, cfg.BatchSize)
}

func NewOllama(cfg config.EmbeddingConfig) (*ClientEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.OllamaURL),
		ollama.WithModel(cfg.LocalModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama embeddings: %w", err)
	}
	return NewClientEmbedder(models.EmbedderIdentity{Provider: ProviderOllama, Model: cfg.LocalModel}, llm, cfg.BatchSize)
}
