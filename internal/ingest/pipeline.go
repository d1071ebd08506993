// Package ingest rebuilds the vector index from the corpus directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"docqa/internal/chunker"
	"docqa/internal/embedding"
	"docqa/internal/helper"
	"docqa/internal/index"
	"docqa/internal/models"
	"docqa/internal/parser"
)

var defaultBackoff = []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}

type Options struct {
	CorpusPath string
	// LockPath is the file guarding against concurrent rebuilds, usually <index path>.lock.
	LockPath  string
	BatchSize int
	// Contextualizer is optional.
	Contextualizer *Contextualizer
}

// Pipeline runs Load, Chunk, Contextualize, Embed, Build and Persist in order.
type Pipeline struct {
	loader   *parser.Loader
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	store    index.Store
	opts     Options
	backoff  []time.Duration
}

type Result struct {
	Files     int
	Documents int
	Chunks    int
	Failed    []*models.FileError
	Manifest  models.Manifest
	Elapsed   time.Duration
}

func New(loader *parser.Loader, c *chunker.Chunker, e embedding.Embedder, store index.Store, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Pipeline{
		loader:   loader,
		chunker:  c,
		embedder: e,
		store:    store,
		opts:     opts,
		backoff:  defaultBackoff,
	}
}

// Run rebuilds the index. An empty corpus returns models.ErrEmptyCorpus and
// leaves any existing index untouched.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	unlock, err := p.lock()
	if err != nil {
		return res, err
	}
	defer unlock()

	docs, err := p.load(ctx, res)
	if err != nil {
		return res, err
	}
	chunks := p.chunk(docs, res)
	texts, err := p.contextualize(ctx, docs, chunks)
	if err != nil {
		return res, err
	}
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return res, err
	}
	idx, err := p.build(chunks, vectors)
	if err != nil {
		return res, err
	}
	if err := p.persist(ctx, idx); err != nil {
		return res, err
	}

	res.Manifest = idx.Manifest()
	res.Elapsed = time.Since(start)
	log.Info().
		Int("documents", res.Documents).
		Int("chunks", res.Chunks).
		Int("failed", len(res.Failed)).
		Str("build_id", res.Manifest.BuildID).
		Dur("elapsed", res.Elapsed).
		Msg("Ingestion complete")
	return res, nil
}

func (p *Pipeline) lock() (func(), error) {
	if p.opts.LockPath == "" {
		return func() {}, nil
	}
	if err := helper.CreateFolder(filepath.Dir(p.opts.LockPath)); err != nil {
		return nil, err
	}
	fl := flock.New(p.opts.LockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire rebuild lock %s: %w", p.opts.LockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held by another process", models.ErrRebuildInProgress, p.opts.LockPath)
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			log.Warn().Err(err).Str("path", p.opts.LockPath).Msg("Failed to release rebuild lock")
		}
	}, nil
}

func (p *Pipeline) load(ctx context.Context, res *Result) ([]models.Document, error) {
	loaded, err := p.loader.Load(ctx, p.opts.CorpusPath)
	if loaded != nil {
		res.Files = loaded.Files
		res.Failed = loaded.Failed
		res.Documents = len(loaded.Documents)
	}
	if err != nil {
		if errors.Is(err, models.ErrEmptyCorpus) {
			log.Warn().Str("corpus", p.opts.CorpusPath).Msg("No documents found, index left unchanged")
		}
		return nil, err
	}
	log.Info().Int("files", res.Files).Int("documents", res.Documents).Int("failed", len(res.Failed)).Msg("Documents loaded")
	return loaded.Documents, nil
}

func (p *Pipeline) chunk(docs []models.Document, res *Result) []models.Chunk {
	chunks := p.chunker.Split(docs)
	res.Chunks = len(chunks)
	log.Info().Int("chunks", len(chunks)).Int("size", p.chunker.Size()).Int("overlap", p.chunker.Overlap()).Msg("Documents chunked")
	return chunks
}

// contextualize returns the texts to embed, one per chunk.
func (p *Pipeline) contextualize(ctx context.Context, docs []models.Document, chunks []models.Chunk) ([]string, error) {
	if p.opts.Contextualizer == nil {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		return texts, nil
	}
	return p.opts.Contextualizer.Apply(ctx, docs, chunks)
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(texts))
		vecs, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, vecs...)
		log.Debug().Int("done", end).Int("total", len(texts)).Msg("Embedded batch")
	}
	return vectors, nil
}

func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= len(p.backoff); attempt++ {
		if attempt > 0 {
			wait := p.backoff[attempt-1]
			log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("backoff", wait).Msg("Retrying embedding batch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		vecs, err := p.embedder.EmbedMany(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !retryable(ctx, err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil:
		return false
	case errors.Is(err, models.ErrCredentialMissing), errors.Is(err, models.ErrConfiguration):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

func (p *Pipeline) build(chunks []models.Chunk, vectors [][]float32) (*index.Memory, error) {
	idx, err := index.Build(p.embedder.Identity(), index.Settings{
		ChunkSize:    p.chunker.Size(),
		ChunkOverlap: p.chunker.Overlap(),
	}, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	return idx, nil
}

func (p *Pipeline) persist(ctx context.Context, idx *index.Memory) error {
	if err := p.store.Persist(ctx, idx); err != nil {
		return fmt.Errorf("failed to persist index: %w", err)
	}
	return nil
}
