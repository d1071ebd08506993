package index

import (
	"context"
	"fmt"

	"docqa/internal/models"
)

// Memory is an exact cosine index held in memory. It is immutable after Build.
type Memory struct {
	manifest models.Manifest
	entries  []Entry
}

func (m *Memory) Len() int                  { return len(m.entries) }
func (m *Memory) Manifest() models.Manifest { return m.manifest }

// Entries returns the entries in build order. Callers must not modify them.
func (m *Memory) Entries() []Entry { return m.entries }

func (m *Memory) Search(ctx context.Context, vector []float32, k int) (models.RetrievalResult, error) {
	k = Clamp(k, len(m.entries))
	if k == 0 {
		return models.RetrievalResult{}, nil
	}
	if len(vector) != m.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrEmbedderMismatch, len(vector), m.manifest.Dimension)
	}
	q, err := Normalize(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", models.ErrInvalidQuery, err)
	}

	scored := make(models.RetrievalResult, len(m.entries))
	for i, e := range m.entries {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scored[i] = models.ScoredChunk{Chunk: e.Chunk, Score: Dot(q, e.Vector)}
	}
	Rank(scored)
	return scored[:k], nil
}
