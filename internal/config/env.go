package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"docqa/internal/models"
)

type envBinding struct {
	name string
	set  func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

var envBindings = []envBinding{
	{"DOCS_PATH", str(func(c *Config) *string { return &c.CorpusPath })},
	{"VECTOR_DB_PATH", str(func(c *Config) *string { return &c.Index.Path })},
	{"INDEX_BACKEND", str(func(c *Config) *string { return &c.Index.Backend })},
	{"INDEX_ENCRYPTION_KEY", str(func(c *Config) *string { return &c.Index.EncryptionKey })},
	{"DATABASE_URL", str(func(c *Config) *string { return &c.Database.DSN })},
	{"CHUNK_SIZE", integer(func(c *Config) *int { return &c.RAG.ChunkSize })},
	{"CHUNK_OVERLAP", integer(func(c *Config) *int { return &c.RAG.ChunkOverlap })},
	{"TOP_K_RETRIEVER", integer(func(c *Config) *int { return &c.RAG.TopK })},
	{"EMBEDDING_PROVIDER", str(func(c *Config) *string { return &c.Embedding.Provider })},
	{"OPENAI_API_KEY", str(func(c *Config) *string { return &c.Embedding.Key })},
	{"OPENAI_BASE_URL", str(func(c *Config) *string { return &c.Embedding.BaseURL })},
	{"EMBEDDING_MODEL", str(func(c *Config) *string { return &c.Embedding.Model })},
	{"LOCAL_EMBEDDING_MODEL", str(func(c *Config) *string { return &c.Embedding.LocalModel })},
	{"OLLAMA_URL", str(func(c *Config) *string { return &c.Embedding.OllamaURL })},
	{"LLM_PROVIDER", str(func(c *Config) *string { return &c.LLM.Provider })},
	{"OPENROUTER_API_KEY", str(func(c *Config) *string { return &c.LLM.Key })},
	{"OPENROUTER_BASE_URL", str(func(c *Config) *string { return &c.LLM.BaseURL })},
	{"LLM_MODEL_NAME", str(func(c *Config) *string { return &c.LLM.Model })},
	{"TEMPERATURE", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		c.LLM.Temperature = &f
		return nil
	}},
	{"REQUEST_TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		c.RequestTimeout = d
		return nil
	}},
	{"DEFAULT_LANGUAGE", str(func(c *Config) *string { return &c.DefaultLanguage })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
}

// applyEnv overlays environment variables on cfg. Empty values are ignored.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			return fmt.Errorf("%w: invalid %s=%q: %v", models.ErrConfiguration, b.name, v, err)
		}
	}
	return nil
}
