// Package i18n translates the messages the gateway itself produces. Responses
// relayed from the remote API are never translated.
package i18n

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
)

const (
	// DefaultLocale is the default language locale (English).
	DefaultLocale = "en"
	// AcceptLanguageHeader is the HTTP header name for language preference.
	AcceptLanguageHeader = "Accept-Language"
)

var (
	defaultTranslator *Translator
	translatorOnce    sync.Once
)

// Translator handles message translation for different locales.
type Translator struct {
	messages map[string]map[string]string
	matcher  language.Matcher
	locales  []string
}

// NewTranslator creates a new translator with the default messages.
func NewTranslator() *Translator {
	messages := defaultMessages()

	// The default locale must come first: the matcher falls back to it.
	locales := []string{DefaultLocale}
	for l := range messages {
		if l != DefaultLocale {
			locales = append(locales, l)
		}
	}
	tags := make([]language.Tag, len(locales))
	for i, l := range locales {
		tags[i] = language.Make(l)
	}

	return &Translator{
		messages: messages,
		matcher:  language.NewMatcher(tags),
		locales:  locales,
	}
}

// GetTranslator returns the default singleton translator instance.
func GetTranslator() *Translator {
	translatorOnce.Do(func() {
		defaultTranslator = NewTranslator()
	})
	return defaultTranslator
}

// Translate returns the message for key in locale, falling back to
// DefaultLocale and then to the key itself.
func (t *Translator) Translate(key, locale string) string {
	if msg, ok := t.messages[locale][key]; ok {
		return msg
	}
	if msg, ok := t.messages[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Match picks the supported locale closest to an Accept-Language value.
func (t *Translator) Match(acceptLanguage string) string {
	acceptLanguage = strings.TrimSpace(acceptLanguage)
	if acceptLanguage == "" {
		return DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLocale
	}
	_, idx, confidence := t.matcher.Match(tags...)
	if confidence == language.No {
		return DefaultLocale
	}
	return t.locales[idx]
}

// GetLocale extracts the locale from the request's Accept-Language header.
func GetLocale(c *gin.Context) string {
	return GetTranslator().Match(c.GetHeader(AcceptLanguageHeader))
}

// Message translates key for the locale of the request.
func Message(c *gin.Context, key string) string {
	return GetTranslator().Translate(key, GetLocale(c))
}

func defaultMessages() map[string]map[string]string {
	return map[string]map[string]string{
		"en": {
			ErrKeyInvalidRequest:    "Invalid request",
			ErrKeyInternalError:     "An unexpected error occurred",
			ErrKeyNotFound:          "Not found",
			ErrKeyConflict:          "Conflict",
			ErrKeyRateLimitExceeded: "Too many requests",
			ErrKeyTimeout:           "Request timeout",
			ErrKeyOffline:           "Remote API unreachable and no cached copy available",
			ErrKeyStorage:           "Local storage failed",
			ErrKeyPayloadTooLarge:   "Request body too large",
		},
		"pt": {
			ErrKeyInvalidRequest:    "Requisição inválida",
			ErrKeyInternalError:     "Ocorreu um erro inesperado",
			ErrKeyNotFound:          "Não encontrado",
			ErrKeyConflict:          "Conflito",
			ErrKeyRateLimitExceeded: "Muitas requisições",
			ErrKeyTimeout:           "Tempo de requisição esgotado",
			ErrKeyOffline:           "API remota inacessível e nenhuma cópia em cache disponível",
			ErrKeyStorage:           "Falha no armazenamento local",
			ErrKeyPayloadTooLarge:   "Corpo da requisição muito grande",
		},
		"nl": {
			ErrKeyInvalidRequest:    "Ongeldig verzoek",
			ErrKeyInternalError:     "Er is een onverwachte fout opgetreden",
			ErrKeyNotFound:          "Niet gevonden",
			ErrKeyConflict:          "Conflict",
			ErrKeyRateLimitExceeded: "Te veel verzoeken",
			ErrKeyTimeout:           "Time-out van verzoek",
			ErrKeyOffline:           "Externe API onbereikbaar en geen kopie in de cache beschikbaar",
			ErrKeyStorage:           "Lokale opslag mislukt",
			ErrKeyPayloadTooLarge:   "Verzoekbody te groot",
		},
	}
}
