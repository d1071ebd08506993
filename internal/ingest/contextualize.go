package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"
	"golang.org/x/sync/errgroup"

	"docqa/internal/llmservice"
	"docqa/internal/models"
)

// Contextualizer asks the language model to situate each chunk within its
// document. The answer is prepended to the text that gets embedded.
type Contextualizer struct {
	llm      llmservice.LLM
	prompt   prompts.PromptTemplate
	maxChars int
	workers  int
}

func NewContextualizer(llm llmservice.LLM, maxChars, workers int) *Contextualizer {
	if workers <= 0 {
		workers = 1
	}
	return &Contextualizer{
		llm:      llm,
		prompt:   prompts.NewPromptTemplate(models.ContextPromptTemplate, []string{"document", "chunk"}),
		maxChars: maxChars,
		workers:  workers,
	}
}

// Situate returns the short context for chunk within document.
func (c *Contextualizer) Situate(ctx context.Context, document, chunk string) (string, error) {
	prompt, err := c.prompt.Format(map[string]any{
		"document": truncate(document, c.maxChars),
		"chunk":    chunk,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render context prompt: %w", err)
	}
	out, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return llmservice.StripThinking(out), nil
}

// Apply returns one text per chunk. A chunk whose context cannot be generated
// is embedded on its own.
func (c *Contextualizer) Apply(ctx context.Context, docs []models.Document, chunks []models.Chunk) ([]string, error) {
	content := make(map[string]string, len(docs))
	for _, d := range docs {
		content[d.Metadata.Source()] = d.Content
	}

	texts := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, ch := range chunks {
		i, ch := i, ch
		g.Go(func() error {
			texts[i] = ch.Text
			situated, err := c.Situate(gctx, content[ch.Metadata.Source()], ch.Text)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn().Err(err).Str("chunk", ch.ID).Msg("Failed to contextualize chunk")
				return nil
			}
			if situated != "" {
				texts[i] = situated + models.ContextSeparator + ch.Text
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info().Int("chunks", len(chunks)).Msg("Chunks contextualized")
	return texts, nil
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return strings.TrimSpace(string(r[:maxChars]))
}
