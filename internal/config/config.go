package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"docqa/internal/helper"
	"docqa/internal/models"
)

const (
	defaultCorpusPath      = "docs"
	defaultIndexPath       = ".index"
	defaultCollection      = "docs"
	defaultTable           = "docqa_chunks"
	defaultChunkSize       = 1000
	defaultChunkOverlap    = 200
	defaultTopK            = 3
	defaultBatchSize       = 64
	defaultEmbeddingModel  = "text-embedding-3-small"
	defaultLocalModel      = "sentence-transformers/all-MiniLM-L6-v2"
	defaultModelsDir       = "models"
	defaultOllamaURL       = "http://localhost:11434"
	defaultOllamaEmbed     = "nomic-embed-text"
	defaultLLMBaseURL      = "https://openrouter.ai/api/v1"
	defaultLLMModel        = "deepseek/deepseek-chat-v3-0324:free"
	defaultTemperature     = 0.5
	defaultRequestTimeout  = 60 * time.Second
	defaultCacheSize       = 256
	defaultServerAddr      = ":8080"
	defaultLanguage        = string(models.LanguagePortuguese)
	defaultContextMaxChars = 8000
)

type Config struct {
	CorpusPath      string          `yaml:"corpus_path" validate:"required"`
	DefaultLanguage string          `yaml:"default_language" validate:"required"`
	RequestTimeout  time.Duration   `yaml:"request_timeout" validate:"gt=0"`
	LogLevel        string          `yaml:"log_level"`
	Ingest          IngestConfig    `yaml:"ingest"`
	RAG             RAGConfig       `yaml:"rag"`
	Index           IndexConfig     `yaml:"index"`
	Database        DatabaseConfig  `yaml:"database"`
	Embedding       EmbeddingConfig `yaml:"embedding"`
	LLM             LLMConfig       `yaml:"llm"`
	Server          ServerConfig    `yaml:"server"`
}

type IngestConfig struct {
	Include     []string `yaml:"include"`
	Workers     int      `yaml:"workers" validate:"gte=0"`
	Contextual  bool     `yaml:"contextual"`
	ContextSize int      `yaml:"context_max_chars" validate:"gte=0"`
}

type RAGConfig struct {
	ChunkSize    int `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK         int `yaml:"top_k" validate:"gt=0"`
	CacheSize    int `yaml:"cache_size" validate:"gte=0"`
}

type IndexConfig struct {
	Backend       string `yaml:"backend" validate:"oneof=file pgvector"`
	Path          string `yaml:"path" validate:"required"`
	Collection    string `yaml:"collection" validate:"required"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key" validate:"omitempty,len=32"`
}

type DatabaseConfig struct {
	DSN    string `yaml:"dsn" validate:"required_if=Enabled true"`
	Driver string `yaml:"driver" validate:"omitempty,oneof=pgdriver pq"`
	Table  string `yaml:"table"`
	Debug  bool   `yaml:"debug"`
	// Enabled is derived from index.backend.
	Enabled bool `yaml:"-"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider" validate:"oneof=auto openai cybertron ollama"`
	Local      string `yaml:"local" validate:"oneof=cybertron ollama"`
	Key        string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model" validate:"required"`
	LocalModel string `yaml:"local_model" validate:"required"`
	ModelsDir  string `yaml:"models_dir"`
	OllamaURL  string `yaml:"ollama_url"`
	BatchSize  int    `yaml:"batch_size" validate:"gt=0"`
}

type LLMConfig struct {
	Provider    string   `yaml:"provider" validate:"oneof=openrouter ollama"`
	BaseURL     string   `yaml:"base_url" validate:"required"`
	Key         string   `yaml:"api_key"`
	Model       string   `yaml:"model" validate:"required"`
	Temperature *float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
}

// SamplingTemperature returns the configured temperature or the default.
// Temperature stays a pointer so an explicit 0 is kept.
func (c LLMConfig) SamplingTemperature() float64 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *Config) {
	if cfg.CorpusPath == "" {
		cfg.CorpusPath = defaultCorpusPath
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = defaultLanguage
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Ingest.Include) == 0 {
		cfg.Ingest.Include = []string{"**/*.pdf", "**/*.txt", "**/*.md", "**/*.docx", "**/*.pptx", "**/*.xlsx", "**/*.xlsm"}
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = runtime.NumCPU()
	}
	if cfg.Ingest.ContextSize == 0 {
		cfg.Ingest.ContextSize = defaultContextMaxChars
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
		if cfg.RAG.ChunkOverlap == 0 {
			cfg.RAG.ChunkOverlap = defaultChunkOverlap
		}
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.CacheSize == 0 {
		cfg.RAG.CacheSize = defaultCacheSize
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = "file"
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = defaultIndexPath
	}
	if cfg.Index.Collection == "" {
		cfg.Index.Collection = defaultCollection
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = defaultTable
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "auto"
	}
	if cfg.Embedding.Local == "" {
		cfg.Embedding.Local = "cybertron"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaultEmbeddingModel
	}
	if cfg.Embedding.LocalModel == "" {
		if cfg.Embedding.Local == "ollama" {
			cfg.Embedding.LocalModel = defaultOllamaEmbed
		} else {
			cfg.Embedding.LocalModel = defaultLocalModel
		}
	}
	if cfg.Embedding.ModelsDir == "" {
		cfg.Embedding.ModelsDir = defaultModelsDir
	}
	if cfg.Embedding.OllamaURL == "" {
		cfg.Embedding.OllamaURL = defaultOllamaURL
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = defaultBatchSize
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openrouter"
	}
	if cfg.LLM.BaseURL == "" {
		if cfg.LLM.Provider == "ollama" {
			cfg.LLM.BaseURL = defaultOllamaURL
		} else {
			cfg.LLM.BaseURL = defaultLLMBaseURL
		}
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultLLMModel
	}
	if cfg.LLM.Temperature == nil {
		t := defaultTemperature
		cfg.LLM.Temperature = &t
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
}

// LoadConfig reads the yaml file at path (optional), loads env files, applies the
// environment overlay and validates the result.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug().Str("path", path).Msg("Config file not found, using defaults and environment")
		case err != nil:
			return nil, fmt.Errorf("%w: failed to read config %s: %v", models.ErrConfiguration, path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: failed to parse config %s: %v", models.ErrConfiguration, path, err)
			}
		}
	}

	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to load env file %s: %v", models.ErrConfiguration, f, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration, reporting failures as models.ErrConfiguration.
func (c *Config) Validate() error {
	c.Database.Enabled = c.Index.Backend == "pgvector"
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", models.ErrConfiguration, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	if _, err := models.ParseLanguage(c.DefaultLanguage); err != nil {
		return fmt.Errorf("%w: default_language: %v", models.ErrConfiguration, err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "ltfield":
		return fmt.Sprintf("%s (%v) must be smaller than %s", field, fe.Value(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "len":
		return fmt.Sprintf("%s must be %s characters long", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	c.Embedding.Key = helper.Mask(c.Embedding.Key)
	c.LLM.Key = helper.Mask(c.LLM.Key)
	c.Index.EncryptionKey = helper.Mask(c.Index.EncryptionKey)
	if c.Database.DSN != "" {
		c.Database.DSN = "****"
	}
	return c
}
