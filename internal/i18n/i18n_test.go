//go:build !integration

package i18n

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGetTranslator(t *testing.T) {
	assert.Same(t, GetTranslator(), GetTranslator())
}

func TestTranslator_Translate(t *testing.T) {
	translator := NewTranslator()

	tests := []struct {
		name     string
		key      string
		locale   string
		expected string
	}{
		{"english message", ErrKeyOffline, "en", "Remote API unreachable and no cached copy available"},
		{"portuguese message", ErrKeyStorage, "pt", "Falha no armazenamento local"},
		{"dutch message", ErrKeyRateLimitExceeded, "nl", "Te veel verzoeken"},
		{"unknown locale falls back to english", ErrKeyTimeout, "fr", "Request timeout"},
		{"empty locale falls back to english", ErrKeyNotFound, "", "Not found"},
		{"unknown key returns the key", "error.missing", "pt", "error.missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, translator.Translate(tt.key, tt.locale))
		})
	}
}

func TestTranslator_EveryLocaleHasEveryKey(t *testing.T) {
	messages := defaultMessages()
	for locale, msgs := range messages {
		for key := range messages[DefaultLocale] {
			assert.Contains(t, msgs, key, "locale %s misses %s", locale, key)
		}
	}
}

func TestTranslator_Match(t *testing.T) {
	translator := NewTranslator()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty header", "", "en"},
		{"exact locale", "pt", "pt"},
		{"regional variant", "pt-BR", "pt"},
		{"quality ordering", "de;q=0.9,nl;q=0.95", "nl"},
		{"unsupported only", "de-DE", "en"},
		{"malformed", ";;;", "en"},
		{"english region", "en-US,en;q=0.9", "en"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, translator.Match(tt.header))
		})
	}
}

func TestMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"no header", "", "Local storage failed"},
		{"portuguese", "pt-PT,en;q=0.5", "Falha no armazenamento local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set(AcceptLanguageHeader, tt.header)
			}
			assert.Equal(t, tt.want, Message(c, ErrKeyStorage))
		})
	}
}
