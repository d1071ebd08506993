package chromemdb

import (
	"context"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"

	"docqa/internal/index"
	"docqa/internal/models"
)

const (
	metaSourcePath  = "source_path"
	metaPageNumber  = "page_number"
	metaDocType     = "doc_type"
	metaChunkIndex  = "chunk_index"
	metaStartOffset = "start_offset"
	metaEndOffset   = "end_offset"
	metaOrdinal     = "ordinal"
)

// Index serves searches from an imported collection.
type Index struct {
	coll     *chromem.Collection
	manifest models.Manifest
}

func (i *Index) Len() int                  { return i.coll.Count() }
func (i *Index) Manifest() models.Manifest { return i.manifest }

func (i *Index) Search(ctx context.Context, vector []float32, k int) (models.RetrievalResult, error) {
	total := i.coll.Count()
	k = index.Clamp(k, total)
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

	for n := index.FetchSize(k, total); ; {
		results, err := i.coll.QueryEmbedding(ctx, q, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query by similarity: %w", err)
		}
		out := make(models.RetrievalResult, 0, len(results))
		for _, r := range results {
			out = append(out, models.ScoredChunk{
				Chunk: fromResult(r),
				// rescored with the same arithmetic as index.Memory
				Score: index.Dot(q, r.Embedding),
			})
		}
		index.Rank(out)
		next := index.Widen(out, k, n, total)
		if next == 0 {
			return out[:min(k, len(out))], nil
		}
		n = next
	}
}

func toDocuments(entries []index.Entry) []chromem.Document {
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		md := e.Chunk.Metadata
		docs[i] = chromem.Document{
			ID:        e.Chunk.ID,
			Content:   e.Chunk.Text,
			Embedding: e.Vector,
			Metadata: map[string]string{
				metaSourcePath:  md.SourcePath,
				metaPageNumber:  strconv.Itoa(md.PageNumber),
				metaDocType:     md.DocType,
				metaChunkIndex:  strconv.Itoa(md.ChunkIndex),
				metaStartOffset: strconv.Itoa(md.StartOffset),
				metaEndOffset:   strconv.Itoa(md.EndOffset),
				metaOrdinal:     strconv.Itoa(md.Ordinal),
			},
		}
	}
	return docs
}

func fromResult(r chromem.Result) models.Chunk {
	atoi := func(key string) int {
		n, err := strconv.Atoi(r.Metadata[key])
		if err != nil {
			return -1
		}
		return n
	}
	page := atoi(metaPageNumber)
	if page < 0 {
		page = 0
	}
	return models.Chunk{
		ID:   r.ID,
		Text: r.Content,
		Metadata: models.ChunkMetadata{
			Metadata: models.Metadata{
				SourcePath: r.Metadata[metaSourcePath],
				PageNumber: page,
				DocType:    r.Metadata[metaDocType],
			},
			ChunkIndex:  atoi(metaChunkIndex),
			StartOffset: atoi(metaStartOffset),
			EndOffset:   atoi(metaEndOffset),
			Ordinal:     atoi(metaOrdinal),
		},
	}
}
