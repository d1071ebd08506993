// Package embeddingtest provides a deterministic Embedder for tests.
package embeddingtest

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"docqa/internal/models"
)

// Hashing embeds text as a bag of hashed lowercase words. Texts sharing words
// score higher, which is enough to exercise retrieval ordering.
type Hashing struct {
	Dim int
	ID  models.EmbedderIdentity

	mu    sync.Mutex
	err   error
	calls atomic.Int32
}

func NewHashing(dim int) *Hashing {
	return &Hashing{Dim: dim, ID: models.EmbedderIdentity{Provider: "fake", Model: fmt.Sprintf("hashing-%d", dim)}}
}

// FailWith makes every following call return err. A nil err clears it.
func (h *Hashing) FailWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

// Calls counts provider round trips.
func (h *Hashing) Calls() int { return int(h.calls.Load()) }

func (h *Hashing) Identity() models.EmbedderIdentity { return h.ID }
func (h *Hashing) Dimension() int                    { return h.Dim }

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := h.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (h *Hashing) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	h.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, models.ProviderError(ctx, "embed", err)
	}
	h.mu.Lock()
	err := h.err
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	v := make([]float32, h.Dim)
	// a small constant component keeps empty texts away from the zero vector
	v[0] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w == "" {
			continue
		}
		f := fnv.New32a()
		f.Write([]byte(w))
		v[int(f.Sum32()%uint32(h.Dim))]++
	}
	return v
}
