// Package rag answers questions from retrieved context.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/prompts"

	"docqa/internal/llmservice"
	"docqa/internal/models"
)

// Retriever is the part of retriever.Retriever the assistant needs.
type Retriever interface {
	Retrieve(ctx context.Context, text string, k int) (models.RetrievalResult, error)
}

type Options struct {
	TopK            int
	Timeout         time.Duration
	DefaultLanguage models.Language
}

// Assistant answers questions. A degraded Assistant carries the reason it
// could not be built and answers every question with a localized notice.
type Assistant struct {
	retriever Retriever
	llm       llmservice.LLM
	prompt    prompts.PromptTemplate
	opts      Options
	degraded  error
}

func New(r Retriever, llm llmservice.LLM, opts Options) *Assistant {
	a := &Assistant{
		retriever: r,
		llm:       llm,
		prompt:    prompts.NewPromptTemplate(models.AnswerPromptTemplate, []string{"context", "question", "language"}),
		opts:      withDefaults(opts),
	}
	if r == nil || llm == nil {
		a.degraded = errors.New("assistant is missing its retriever or language model")
	}
	return a
}

// NewDegraded returns an Assistant that reports reason for every question.
func NewDegraded(reason error, opts Options) *Assistant {
	if reason == nil {
		reason = errors.New("assistant is not configured")
	}
	return &Assistant{opts: withDefaults(opts), degraded: reason}
}

func withDefaults(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = models.LanguagePortuguese
	}
	return opts
}

// Err returns why the assistant is degraded, or nil when it is ready.
func (a *Assistant) Err() error { return a.degraded }

func (a *Assistant) Ready() bool { return a.degraded == nil }

// RenderPrompt fills the answer template.
func (a *Assistant) RenderPrompt(contextText, question string, lang models.Language) (string, error) {
	return a.prompt.Format(map[string]any{
		"context":  contextText,
		"question": question,
		"language": string(lang),
	})
}

func (a *Assistant) language(language string) (models.Language, error) {
	if strings.TrimSpace(language) == "" {
		return a.opts.DefaultLanguage, nil
	}
	return models.ParseLanguage(language)
}

// Answer runs retrieval and generation under the request timeout.
func (a *Assistant) Answer(ctx context.Context, question, language string) (*models.PromptResponse, error) {
	if a.degraded != nil {
		return nil, a.degraded
	}
	lang, err := a.language(language)
	if err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidQuery)
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	results, err := a.retriever.Retrieve(ctx, question, a.opts.TopK)
	if err != nil {
		return nil, err
	}
	prompt, err := a.RenderPrompt(strings.Join(results.Texts(), models.ContextSeparator), question, lang)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}
	log.Debug().Int("chunks", len(results)).Int("prompt_chars", len(prompt)).Str("language", string(lang)).Msg("Prompt rendered")

	out, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &models.PromptResponse{
		Query:    question,
		Language: lang,
		Sources:  results.Sources(),
		Content:  llmservice.StripThinking(out),
	}, nil
}

// Respond is Answer with every failure turned into a degraded response.
func (a *Assistant) Respond(ctx context.Context, question, language string) (resp *models.PromptResponse) {
	lang, langErr := a.language(language)
	if langErr != nil {
		lang = a.opts.DefaultLanguage
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic while answering")
			resp = degradedResponse(question, lang, models.ReasonFor(nil))
		}
	}()

	resp, err := a.Answer(ctx, question, language)
	if err != nil {
		reason := models.ReasonFor(err)
		if a.degraded != nil && reason == models.ReasonNotConfigured {
			log.Warn().Err(err).Msg("Assistant is degraded")
		} else {
			log.Error().Err(err).Msg("Failed to answer question")
		}
		return degradedResponse(question, lang, reason)
	}
	return resp
}

// Ask returns the answer text. It never fails: errors become a localized message.
func (a *Assistant) Ask(ctx context.Context, question, language string) string {
	return a.Respond(ctx, question, language).Content
}

func degradedResponse(question string, lang models.Language, reason models.DegradedReason) *models.PromptResponse {
	return &models.PromptResponse{
		Query:    question,
		Language: lang,
		Sources:  []string{},
		Content:  models.DegradedMessage(lang, reason),
		Degraded: true,
	}
}
