// Package app builds the components from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"docqa/internal/chromemdb"
	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/db"
	"docqa/internal/embedding"
	"docqa/internal/index"
	"docqa/internal/ingest"
	"docqa/internal/llmservice"
	"docqa/internal/models"
	"docqa/internal/parser"
	"docqa/internal/rag"
	"docqa/internal/retriever"
)

type deps struct {
	embedder embedding.Embedder
	llm      llmservice.LLM
}

// Option replaces a provider built from configuration.
type Option func(*deps)

func WithEmbedder(e embedding.Embedder) Option { return func(d *deps) { d.embedder = e } }

func WithLLM(l llmservice.LLM) Option { return func(d *deps) { d.llm = l } }

func resolve(opts []Option) *deps {
	d := &deps{}
	for _, o := range opts {
		o(d)
	}
	return d
}

// NewStore returns the configured index store and a func releasing it.
func NewStore(cfg *config.Config) (index.Store, func(), error) {
	switch cfg.Index.Backend {
	case "", "file":
		s, err := chromemdb.NewStore(cfg.Index)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case "pgvector":
		sqldb, err := db.ConnectDB(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		bunDB := db.NewDB(sqldb, cfg.Database.Debug)
		closeFn := func() {
			if err := bunDB.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}
		return db.NewStore(bunDB, cfg.Database.Table), closeFn, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown index backend %q", models.ErrConfiguration, cfg.Index.Backend)
	}
}

// LockPath is the file guarding index rebuilds.
func LockPath(cfg *config.Config) string {
	return cfg.Index.Path + ".lock"
}

// NewPipeline wires the ingestion stages.
func NewPipeline(cfg *config.Config, opts ...Option) (*ingest.Pipeline, func(), error) {
	d := resolve(opts)
	c, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	if d.embedder == nil {
		if d.embedder, err = embedding.New(cfg.Embedding); err != nil {
			return nil, nil, err
		}
	}

	var ctxer *ingest.Contextualizer
	if cfg.Ingest.Contextual {
		if d.llm == nil {
			if d.llm, err = llmservice.New(cfg.LLM); err != nil {
				return nil, nil, fmt.Errorf("contextual ingestion needs a language model: %w", err)
			}
		}
		ctxer = ingest.NewContextualizer(d.llm, cfg.Ingest.ContextSize, cfg.Ingest.Workers)
	}

	store, closeFn, err := NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	p := ingest.New(parser.NewLoader(cfg.Ingest.Include, cfg.Ingest.Workers), c, d.embedder, store, ingest.Options{
		CorpusPath:     cfg.CorpusPath,
		LockPath:       LockPath(cfg),
		BatchSize:      cfg.Embedding.BatchSize,
		Contextualizer: ctxer,
	})
	return p, closeFn, nil
}

// NewAssistant never fails. When a component cannot be built the returned
// Assistant is degraded and reports why on every question.
func NewAssistant(ctx context.Context, cfg *config.Config, opts ...Option) (*rag.Assistant, func()) {
	d := resolve(opts)
	lang, err := models.ParseLanguage(cfg.DefaultLanguage)
	if err != nil {
		lang = models.LanguagePortuguese
	}
	ropts := rag.Options{TopK: cfg.RAG.TopK, Timeout: cfg.RequestTimeout, DefaultLanguage: lang}
	noop := func() {}

	degraded := func(err error, closeFn func()) (*rag.Assistant, func()) {
		log.Error().Err(err).Msg("Assistant running in degraded mode")
		return rag.NewDegraded(err, ropts), closeFn
	}

	store, closeFn, err := NewStore(cfg)
	if err != nil {
		return degraded(err, noop)
	}
	identity := embedding.Select(cfg.Embedding)
	if d.embedder != nil {
		identity = d.embedder.Identity()
	}
	idx, err := index.Open(ctx, store, identity, 0)
	if err != nil {
		return degraded(fmt.Errorf("failed to load index: %w", err), closeFn)
	}

	if d.embedder == nil {
		if d.embedder, err = embedding.New(cfg.Embedding); err != nil {
			return degraded(err, closeFn)
		}
	}
	cached, err := embedding.NewCached(d.embedder, cfg.RAG.CacheSize)
	if err != nil {
		return degraded(err, closeFn)
	}
	r, err := retriever.New(cached, idx, cfg.RAG.TopK)
	if err != nil {
		return degraded(err, closeFn)
	}

	if d.llm == nil {
		if d.llm, err = llmservice.New(cfg.LLM); err != nil {
			return degraded(err, closeFn)
		}
	}
	m := idx.Manifest()
	log.Info().
		Str("build_id", m.BuildID).
		Int("chunks", idx.Len()).
		Str("embedder", identity.String()).
		Msg("Assistant ready")
	return rag.New(r, d.llm, ropts), closeFn
}

// ReadManifest returns the manifest of the persisted index.
func ReadManifest(ctx context.Context, cfg *config.Config) (models.Manifest, error) {
	store, closeFn, err := NewStore(cfg)
	if err != nil {
		return models.Manifest{}, err
	}
	defer closeFn()
	idx, err := store.Load(ctx)
	if err != nil {
		return models.Manifest{}, err
	}
	return idx.Manifest(), nil
}
