package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guttosm/offline-sync/internal/remote"
)

const (
	// IdempotencyKeyHeader is the header carrying the idempotency key of a mutation.
	IdempotencyKeyHeader = remote.IdempotencyHeader
	// IdempotencyKeyTTL is how long a successful response stays replayable.
	IdempotencyKeyTTL = 5 * time.Minute
	// IdempotencyReplayedHeader marks a response served from the replay cache.
	IdempotencyReplayedHeader = "X-Idempotency-Replayed"
)

type cachedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Timestamp  time.Time
}

// IdempotencyConfig holds configuration for the idempotency middleware.
type IdempotencyConfig struct {
	Cache   *idempotencyCache
	TTL     time.Duration
	Enabled bool
}

// DefaultIdempotencyConfig returns the default configuration with a fresh cache.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		Cache:   newIdempotencyCache(IdempotencyKeyTTL),
		TTL:     IdempotencyKeyTTL,
		Enabled: true,
	}
}

// Idempotency gives every mutation an Idempotency-Key before it reaches the
// engine, generating one when the client sent none. Successful responses to
// client-keyed requests are cached and replayed when the same key, method,
// path and body arrive again within the TTL. Queued acknowledgements are
// never cached.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutation(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Request.Header.Set(IdempotencyKeyHeader, uuid.NewString())
			c.Next()
			return
		}
		if !cfg.Enabled || cfg.Cache == nil {
			c.Next()
			return
		}

		cacheKey := fingerprint(key, c.Request)
		if cached, ok := cfg.Cache.Get(cacheKey); ok {
			for k, vs := range cached.Header {
				for _, v := range vs {
					c.Writer.Header().Add(k, v)
				}
			}
			c.Header(IdempotencyReplayedHeader, "true")
			c.Data(cached.StatusCode, cached.Header.Get("Content-Type"), cached.Body)
			c.Abort()
			return
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		if writer.statusCode >= 200 && writer.statusCode < 300 && writer.Header().Get("X-Offline-Queued") == "" {
			cfg.Cache.Set(cacheKey, &cachedResponse{
				StatusCode: writer.statusCode,
				Header:     writer.Header().Clone(),
				Body:       writer.body.Bytes(),
			})
		}
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// fingerprint hashes the key with method, path and body. The body is
// restored on the request afterwards.
func fingerprint(key string, req *http.Request) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(key)
	_, _ = d.WriteString(req.Method)
	_, _ = d.WriteString(req.URL.Path)

	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(body))
		_, _ = d.Write(body)
	}
	return d.Sum64()
}

// responseWriter captures the response for caching.
type responseWriter struct {
	gin.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
