package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/embedding/embeddingtest"
	"docqa/internal/index"
	"docqa/internal/models"
	"docqa/internal/retriever"
)

// recordingLLM returns reply (or err) and keeps every prompt it receives.
type recordingLLM struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
	delay   time.Duration
	panics  bool
}

func (l *recordingLLM) Generate(ctx context.Context, prompt string) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.mu.Unlock()
	if l.panics {
		panic("model exploded")
	}
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return "", models.ProviderError(ctx, "generate", ctx.Err())
		}
	}
	return l.reply, l.err
}

func newRetriever(t *testing.T) *retriever.Retriever {
	t.Helper()
	e := embeddingtest.NewHashing(32)
	texts := []string{
		"Goroutines are lightweight threads managed by the Go runtime.",
		"A channel is a typed conduit for values between goroutines.",
		"Maps are reference types holding key value pairs.",
	}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ID:   fmt.Sprintf("c%d", i),
			Text: text,
			Metadata: models.ChunkMetadata{
				Metadata: models.Metadata{SourcePath: "guide.pdf", PageNumber: i + 1, DocType: models.DocTypePDF},
				Ordinal:  i,
			},
		}
	}
	vecs, err := e.EmbedMany(context.Background(), texts)
	require.NoError(t, err)
	idx, err := index.Build(e.Identity(), index.Settings{ChunkSize: 1000}, chunks, vecs)
	require.NoError(t, err)
	r, err := retriever.New(e, idx, 2)
	require.NoError(t, err)
	return r
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("Should ground the prompt in retrieved context", func(t *testing.T) {
		llm := &recordingLLM{reply: "<think>hmm</think>\n  Goroutines are threads.  "}
		a := New(newRetriever(t), llm, Options{TopK: 2, DefaultLanguage: models.LanguageEnglish})

		resp, err := a.Answer(ctx, "What are goroutines?", "")
		require.NoError(t, err)
		assert.Equal(t, "Goroutines are threads.", resp.Content)
		assert.Equal(t, models.LanguageEnglish, resp.Language)
		assert.False(t, resp.Degraded)
		assert.Len(t, resp.Sources, 2)

		require.Len(t, llm.prompts, 1)
		p := llm.prompts[0]
		assert.Contains(t, p, "Answer in English.")
		assert.Contains(t, p, "Question: What are goroutines?")
		assert.Contains(t, p, "Goroutines are lightweight threads")
	})

	t.Run("Should differ only in the language directive across languages", func(t *testing.T) {
		llm := &recordingLLM{reply: "ok"}
		a := New(newRetriever(t), llm, Options{TopK: 3})

		_, err := a.Answer(ctx, "How do channels work?", "English")
		require.NoError(t, err)
		_, err = a.Answer(ctx, "How do channels work?", "Português do Brasil")
		require.NoError(t, err)

		require.Len(t, llm.prompts, 2)
		en := strings.Replace(llm.prompts[0], "Answer in English.", "Answer in <L>.", 1)
		pt := strings.Replace(llm.prompts[1], "Answer in Português do Brasil.", "Answer in <L>.", 1)
		assert.NotEqual(t, llm.prompts[0], llm.prompts[1])
		assert.Equal(t, en, pt)
	})

	t.Run("Should reject an unsupported language", func(t *testing.T) {
		a := New(newRetriever(t), &recordingLLM{}, Options{})
		_, err := a.Answer(ctx, "question", "Klingon")
		assert.ErrorIs(t, err, models.ErrInvalidQuery)
	})

	t.Run("Should reject a blank question", func(t *testing.T) {
		a := New(newRetriever(t), &recordingLLM{}, Options{})
		_, err := a.Answer(ctx, "   ", "en")
		assert.ErrorIs(t, err, models.ErrInvalidQuery)
	})

	t.Run("Should return the degraded reason", func(t *testing.T) {
		a := NewDegraded(models.ErrIndexNotFound, Options{})
		_, err := a.Answer(ctx, "question", "en")
		assert.ErrorIs(t, err, models.ErrIndexNotFound)
		assert.False(t, a.Ready())
	})
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return the answer text", func(t *testing.T) {
		a := New(newRetriever(t), &recordingLLM{reply: "Use channels."}, Options{})
		assert.Equal(t, "Use channels.", a.Ask(ctx, "How do goroutines talk?", "en"))
	})

	t.Run("Should explain a missing index before ingestion", func(t *testing.T) {
		a := NewDegraded(fmt.Errorf("failed to load index: %w", models.ErrIndexNotFound), Options{DefaultLanguage: models.LanguagePortuguese})
		got := a.Ask(ctx, "O que é uma goroutine?", "")
		assert.Equal(t, models.DegradedMessage(models.LanguagePortuguese, models.ReasonIndexMissing), got)
	})

	t.Run("Should report a missing configuration", func(t *testing.T) {
		a := NewDegraded(models.ErrCredentialMissing, Options{})
		got := a.Ask(ctx, "question", "Español")
		assert.Equal(t, models.DegradedMessage(models.LanguageSpanish, models.ReasonNotConfigured), got)
	})

	t.Run("Should localize provider failures", func(t *testing.T) {
		llm := &recordingLLM{err: fmt.Errorf("%w: 502 bad gateway", models.ErrProviderCall)}
		a := New(newRetriever(t), llm, Options{})
		resp := a.Respond(ctx, "What is a map?", "pt-BR")
		assert.True(t, resp.Degraded)
		assert.Equal(t, models.DegradedMessage(models.LanguagePortuguese, models.ReasonProviderFailure), resp.Content)
	})

	t.Run("Should time out slow providers", func(t *testing.T) {
		llm := &recordingLLM{reply: "late", delay: time.Second}
		a := New(newRetriever(t), llm, Options{Timeout: 20 * time.Millisecond})
		got := a.Ask(ctx, "What is a map?", "English")
		assert.Equal(t, models.DegradedMessage(models.LanguageEnglish, models.ReasonTimeout), got)
	})

	t.Run("Should recover from panics", func(t *testing.T) {
		a := New(newRetriever(t), &recordingLLM{panics: true}, Options{})
		var resp *models.PromptResponse
		require.NotPanics(t, func() { resp = a.Respond(ctx, "What is a map?", "English") })
		assert.True(t, resp.Degraded)
		assert.NotEmpty(t, resp.Content)
	})

	t.Run("Should fall back to the default language for an unknown one", func(t *testing.T) {
		a := New(newRetriever(t), &recordingLLM{}, Options{DefaultLanguage: models.LanguageEnglish})
		got := a.Ask(ctx, "question", "Klingon")
		assert.Equal(t, models.DegradedMessage(models.LanguageEnglish, models.ReasonInvalidQuery), got)
	})

	t.Run("Should degrade without collaborators", func(t *testing.T) {
		a := New(nil, nil, Options{})
		assert.False(t, a.Ready())
		assert.NotEmpty(t, a.Ask(ctx, "question", "en"))
		assert.Error(t, a.Err())
	})
}
