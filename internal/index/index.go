// Package index builds vector indexes from embedded chunks and defines the
// contract of the stores that persist them.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"docqa/internal/helper"
	"docqa/internal/models"
)

// Index is a read-only, similarity searchable set of chunks.
type Index interface {
	// Search returns at most k results ordered by descending similarity.
	Search(ctx context.Context, vector []float32, k int) (models.RetrievalResult, error)
	Len() int
	Manifest() models.Manifest
}

// Store persists a built index and loads it back.
type Store interface {
	// Persist replaces the stored index with idx. A failure leaves the previous index in place
	// unless models.ErrIndexRebuild is returned.
	Persist(ctx context.Context, idx *Memory) error
	// Load returns models.ErrIndexNotFound when nothing has been persisted yet.
	Load(ctx context.Context) (Index, error)
}

type Settings struct {
	ChunkSize    int
	ChunkOverlap int
}

// Entry pairs a chunk with its unit length vector.
type Entry struct {
	Chunk  models.Chunk
	Vector []float32
}

// Build creates an in-memory index. chunks and vectors are matched by position
// and every vector must have the same non zero length.
func Build(id models.EmbedderIdentity, settings Settings, chunks []models.Chunk, vectors [][]float32) (*Memory, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	dim := 0
	entries := make([]Entry, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		v := vectors[i]
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("index: chunk %s has %d dimensions, index has %d", c.ID, len(v), dim)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("index: duplicate chunk id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("index: chunk %s: %w", c.ID, err)
		}
		entries[i] = Entry{Chunk: c, Vector: n}
	}

	buildID, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	return &Memory{
		manifest: models.Manifest{
			FormatVersion: models.ManifestFormatVersion,
			BuildID:       buildID,
			BuiltAt:       time.Now().UTC().Truncate(time.Second),
			Provider:      id.Provider,
			Model:         id.Model,
			Dimension:     dim,
			Count:         len(entries),
			ChunkSize:     settings.ChunkSize,
			ChunkOverlap:  settings.ChunkOverlap,
			Distance:      models.DistanceCosine,
		},
		entries: entries,
	}, nil
}

// CheckCompatible rejects an index built in another embedding space.
// dim is the embedder's known dimension, or 0 if not yet known.
func CheckCompatible(m models.Manifest, id models.EmbedderIdentity, dim int) error {
	if m.Identity() != id {
		return fmt.Errorf("%w: index built with %s, active embedder is %s", models.ErrEmbedderMismatch, m.Identity(), id)
	}
	if dim > 0 && m.Dimension > 0 && dim != m.Dimension {
		return fmt.Errorf("%w: index has %d dimensions, embedder produces %d", models.ErrEmbedderMismatch, m.Dimension, dim)
	}
	return nil
}

// Open loads the index from store and checks it against the active embedder.
func Open(ctx context.Context, store Store, id models.EmbedderIdentity, dim int) (Index, error) {
	idx, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := CheckCompatible(idx.Manifest(), id, dim); err != nil {
		return nil, err
	}
	return idx, nil
}

var errZeroVector = errors.New("zero vector has no direction")

// Normalize returns a unit length copy of v.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, errZeroVector
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

// Dot is the cosine similarity of two unit vectors.
func Dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// Clamp bounds k to the number of entries.
func Clamp(k, n int) int {
	if k > n {
		return n
	}
	if k < 0 {
		return 0
	}
	return k
}

// tieTolerance absorbs rounding differences between a store's own scoring and Dot.
const tieTolerance = 1e-6

// FetchSize is the number of candidates a store asks for first when it needs the top k of total.
func FetchSize(k, total int) int {
	return Clamp(2*k, total)
}

// Widen returns a larger fetch size while the lowest ranked candidate still
// ties the k-th one, since an entry left out of the fetch may outrank it on
// ordinal. It returns 0 once the candidates settle the top k.
func Widen(ranked models.RetrievalResult, k, fetched, total int) int {
	if fetched >= total || len(ranked) < fetched || len(ranked) <= k {
		return 0
	}
	if ranked[len(ranked)-1].Score+tieTolerance < ranked[k-1].Score {
		return 0
	}
	return min(2*fetched, total)
}

// Rank sorts results by descending score, breaking ties by corpus order then id.
func Rank(r models.RetrievalResult) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Score != r[j].Score {
			return r[i].Score > r[j].Score
		}
		if r[i].Chunk.Metadata.Ordinal != r[j].Chunk.Metadata.Ordinal {
			return r[i].Chunk.Metadata.Ordinal < r[j].Chunk.Metadata.Ordinal
		}
		return r[i].Chunk.ID < r[j].Chunk.ID
	})
}
