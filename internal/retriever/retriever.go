package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docqa/internal/embedding"
	"docqa/internal/index"
	"docqa/internal/models"
)

const DefaultTopK = 3

// Retriever finds the chunks closest to a question. It holds no mutable state
// and is safe for concurrent use.
type Retriever struct {
	embedder embedding.Embedder
	index    index.Index
	defaultK int
}

func New(e embedding.Embedder, idx index.Index, defaultK int) (*Retriever, error) {
	if e == nil || idx == nil {
		return nil, errors.New("retriever: embedder and index are required")
	}
	if err := index.CheckCompatible(idx.Manifest(), e.Identity(), e.Dimension()); err != nil {
		return nil, err
	}
	if defaultK <= 0 {
		defaultK = DefaultTopK
	}
	return &Retriever{embedder: e, index: idx, defaultK: defaultK}, nil
}

func (r *Retriever) Index() index.Index { return r.index }

// Retrieve returns up to k chunks by descending similarity. k <= 0 uses the default.
func (r *Retriever) Retrieve(ctx context.Context, text string, k int) (models.RetrievalResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidQuery)
	}
	if k <= 0 {
		k = r.defaultK
	}
	if r.index.Len() == 0 {
		return models.RetrievalResult{}, nil
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}
	res, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	log.Debug().
		Int("k", k).
		Int("results", len(res)).
		Dur("elapsed", time.Since(start)).
		Msg("Retrieved context")
	return res, nil
}
