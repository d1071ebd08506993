package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes single text embeddings. Batch calls go straight to the wrapped Embedder.
type Cached struct {
	Embedder
	cache *lru.Cache[string, []float32]
}

// NewCached wraps e with an LRU cache of size entries. A size of 0 disables caching.
func NewCached(e Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return e, nil
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cached{Embedder: e, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}
