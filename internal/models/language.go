package models

import (
	"fmt"
	"strings"
)

type Language string

const (
	LanguageEnglish    Language = "English"
	LanguagePortuguese Language = "Português do Brasil"
	LanguageSpanish    Language = "Español"
)

var languageAliases = map[string]Language{
	"english":             LanguageEnglish,
	"en":                  LanguageEnglish,
	"en-us":               LanguageEnglish,
	"en-gb":               LanguageEnglish,
	"português do brasil": LanguagePortuguese,
	"portugues do brasil": LanguagePortuguese,
	"português":           LanguagePortuguese,
	"portuguese":          LanguagePortuguese,
	"pt":                  LanguagePortuguese,
	"pt-br":               LanguagePortuguese,
	"español":             LanguageSpanish,
	"espanol":             LanguageSpanish,
	"spanish":             LanguageSpanish,
	"es":                  LanguageSpanish,
}

// Languages lists the supported answer languages.
func Languages() []Language {
	return []Language{LanguagePortuguese, LanguageEnglish, LanguageSpanish}
}

// ParseLanguage resolves a display name or short code to a supported language.
func ParseLanguage(s string) (Language, error) {
	key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", "-")))
	if l, ok := languageAliases[key]; ok {
		return l, nil
	}
	return "", fmt.Errorf("%w: unsupported language %q", ErrInvalidQuery, s)
}
