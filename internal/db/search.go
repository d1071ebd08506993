package db

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"

	"docqa/internal/index"
	"docqa/internal/models"
)

// Index searches a persisted table with the pgvector cosine operator.
type Index struct {
	db       *bun.DB
	table    string
	manifest models.Manifest
}

func (i *Index) Len() int                  { return i.manifest.Count }
func (i *Index) Manifest() models.Manifest { return i.manifest }

func (i *Index) Search(ctx context.Context, vector []float32, k int) (models.RetrievalResult, error) {
	k = index.Clamp(k, i.manifest.Count)
	if k == 0 {
		return models.RetrievalResult{}, nil
	}
	if len(vector) != i.manifest.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", models.ErrEmbedderMismatch, len(vector), i.manifest.Dimension)
	}
	q, err := index.Normalize(vector)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", models.ErrInvalidQuery, err)
	}
	vec := pgvector.NewVector(q)

	total := i.manifest.Count
	for n := index.FetchSize(k, total); ; {
		out, err := i.search(ctx, vec, n)
		if err != nil {
			return nil, err
		}
		index.Rank(out)
		next := index.Widen(out, k, n, total)
		if next == 0 {
			return out[:min(k, len(out))], nil
		}
		n = next
	}
}

func (i *Index) search(ctx context.Context, vec pgvector.Vector, limit int) (models.RetrievalResult, error) {
	var rows []ChunkRow
	err := i.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS c", bun.Ident(i.table)).
		Column("id", "content", "source_path", "page_number", "doc_type", "chunk_index", "start_offset", "end_offset", "ordinal").
		ColumnExpr("1 - (c.embedding <=> ?) AS score", vec).
		OrderExpr("c.embedding <=> ?", vec).
		OrderExpr("c.ordinal ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, models.ProviderError(ctx, "search", fmt.Errorf("failed to search %s: %w", i.table, err))
	}

	out := make(models.RetrievalResult, len(rows))
	for n, r := range rows {
		out[n] = models.ScoredChunk{
			Chunk: models.Chunk{
				ID:   r.ID,
				Text: r.Content,
				Metadata: models.ChunkMetadata{
					Metadata:    models.Metadata{SourcePath: r.SourcePath, PageNumber: r.PageNumber, DocType: r.DocType},
					ChunkIndex:  r.ChunkIndex,
					StartOffset: r.StartOffset,
					EndOffset:   r.EndOffset,
					Ordinal:     r.Ordinal,
				},
			},
			Score: float32(r.Score),
		}
	}
	return out, nil
}
