package models

import (
	"context"
	"errors"
)

// DegradedReason classifies why an answer could not be produced.
type DegradedReason int

const (
	ReasonNotConfigured DegradedReason = iota
	ReasonIndexMissing
	ReasonEmbedderMismatch
	ReasonProviderFailure
	ReasonTimeout
	ReasonInvalidQuery
)

var degradedMessages = map[Language]map[DegradedReason]string{
	LanguageEnglish: {
		ReasonNotConfigured:    "Sorry, the assistant is not configured correctly. Check the console for errors.",
		ReasonIndexMissing:     "Sorry, no documents have been indexed yet. Run the ingestion first and try again.",
		ReasonEmbedderMismatch: "Sorry, the document index was built with a different embedding model. Run the ingestion again.",
		ReasonProviderFailure:  "Sorry, the language model service is unavailable right now. Please try again later.",
		ReasonTimeout:          "Sorry, the answer took too long. Please try again.",
		ReasonInvalidQuery:     "Sorry, I could not understand the question. Please type a question and pick a supported language.",
	},
	LanguagePortuguese: {
		ReasonNotConfigured:    "Desculpe, o assistente não está configurado corretamente. Verifique o console para erros.",
		ReasonIndexMissing:     "Desculpe, nenhum documento foi indexado ainda. Execute a ingestão e tente novamente.",
		ReasonEmbedderMismatch: "Desculpe, o índice de documentos foi criado com outro modelo de embeddings. Execute a ingestão novamente.",
		ReasonProviderFailure:  "Desculpe, o serviço do modelo de linguagem está indisponível no momento. Tente novamente mais tarde.",
		ReasonTimeout:          "Desculpe, a resposta demorou demais. Tente novamente.",
		ReasonInvalidQuery:     "Desculpe, não entendi a pergunta. Digite uma pergunta e escolha um idioma suportado.",
	},
	LanguageSpanish: {
		ReasonNotConfigured:    "Lo siento, el asistente no está configurado correctamente. Revise la consola para ver los errores.",
		ReasonIndexMissing:     "Lo siento, todavía no se ha indexado ningún documento. Ejecute la ingesta e inténtelo de nuevo.",
		ReasonEmbedderMismatch: "Lo siento, el índice de documentos se creó con otro modelo de embeddings. Ejecute la ingesta de nuevo.",
		ReasonProviderFailure:  "Lo siento, el servicio del modelo de lenguaje no está disponible. Inténtelo más tarde.",
		ReasonTimeout:          "Lo siento, la respuesta tardó demasiado. Inténtelo de nuevo.",
		ReasonInvalidQuery:     "Lo siento, no entendí la pregunta. Escriba una pregunta y elija un idioma compatible.",
	},
}

// DegradedMessage returns the user-facing message for reason, falling back to English.
func DegradedMessage(lang Language, reason DegradedReason) string {
	if msgs, ok := degradedMessages[lang]; ok {
		return msgs[reason]
	}
	return degradedMessages[LanguageEnglish][reason]
}

// ReasonFor maps an error from the query path to a degraded reason.
func ReasonFor(err error) DegradedReason {
	switch {
	case errors.Is(err, ErrIndexNotFound):
		return ReasonIndexMissing
	case errors.Is(err, ErrEmbedderMismatch):
		return ReasonEmbedderMismatch
	case errors.Is(err, ErrInvalidQuery):
		return ReasonInvalidQuery
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrProviderCall):
		return ReasonProviderFailure
	default:
		return ReasonNotConfigured
	}
}
