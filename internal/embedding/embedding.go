package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"docqa/internal/models"
)

// Embedder maps text to fixed dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedMany returns one vector per text, in input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Identity() models.EmbedderIdentity
	// Dimension is 0 until the first vector is seen, unless the model is known.
	Dimension() int
}

var knownDimensions = map[string]int{
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"BAAI/bge-small-en-v1.5":                 384,
	"nomic-embed-text":                       768,
	"mxbai-embed-large":                      1024,
}

// ClientEmbedder adapts a langchaingo embedding client to Embedder.
type ClientEmbedder struct {
	id   models.EmbedderIdentity
	impl *embeddings.EmbedderImpl
	dim  atomic.Int64
}

// NewClientEmbedder wraps client; batchSize bounds texts per provider request.
func NewClientEmbedder(id models.EmbedderIdentity, client embeddings.EmbedderClient, batchSize int) (*ClientEmbedder, error) {
	opts := []embeddings.Option{embeddings.WithStripNewLines(true)}
	if batchSize > 0 {
		opts = append(opts, embeddings.WithBatchSize(batchSize))
	}
	impl, err := embeddings.NewEmbedder(client, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	e := &ClientEmbedder{id: id, impl: impl}
	e.dim.Store(int64(knownDimensions[id.Model]))
	return e, nil
}

func (e *ClientEmbedder) Identity() models.EmbedderIdentity { return e.id }

func (e *ClientEmbedder) Dimension() int { return int(e.dim.Load()) }

func (e *ClientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, models.ProviderError(ctx, "embed query", err)
	}
	if err := e.observe(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *ClientEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, models.ProviderError(ctx, "embed documents", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", models.ErrProviderCall, len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := e.observe(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// observe records the dimension on first use and rejects vectors of another length.
func (e *ClientEmbedder) observe(vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: provider returned an empty vector", models.ErrProviderCall)
	}
	if e.dim.CompareAndSwap(0, int64(len(vec))) {
		log.Debug().Str("embedder", e.id.String()).Int("dimension", len(vec)).Msg("Learned embedding dimension")
		return nil
	}
	if want := e.Dimension(); want != len(vec) {
		return fmt.Errorf("%w: expected %d dimensions from %s, got %d", models.ErrProviderCall, want, e.id, len(vec))
	}
	return nil
}
