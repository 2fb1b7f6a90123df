package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/offline-sync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var last string
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		if sc.Text() != "" {
			last = sc.Text()
		}
	}
	require.NotEmpty(t, last)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(last), &line))
	return line
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		handler   gin.HandlerFunc
		wantLevel string
		check     func(*testing.T, map[string]interface{})
	}{
		{
			name:      "success logs at info",
			handler:   func(c *gin.Context) { c.String(http.StatusOK, "ok") },
			wantLevel: "info",
		},
		{
			name:      "client error logs at warn",
			handler:   func(c *gin.Context) { c.Status(http.StatusNotFound) },
			wantLevel: "warn",
		},
		{
			name:      "server error logs at error",
			handler:   func(c *gin.Context) { c.Status(http.StatusBadGateway) },
			wantLevel: "error",
		},
		{
			name: "queued write adds action id",
			handler: func(c *gin.Context) {
				c.Header("X-Offline-Queued", "true")
				c.Header("X-Offline-Action-Id", "act-1")
				c.Status(http.StatusAccepted)
			},
			wantLevel: "info",
			check: func(t *testing.T, line map[string]interface{}) {
				assert.Equal(t, true, line["queued"])
				assert.Equal(t, "act-1", line["action_id"])
			},
		},
		{
			name: "cache fallback is recorded",
			handler: func(c *gin.Context) {
				c.Header("X-Offline-Fallback", "cache")
				c.Status(http.StatusOK)
			},
			wantLevel: "info",
			check: func(t *testing.T, line map[string]interface{}) {
				assert.Equal(t, "cache", line["fallback"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger.InitWithWriter("debug", false, &buf)
			t.Cleanup(func() { logger.Init("info", false) })

			router := gin.New()
			router.Use(RequestID(), RequestLogger())
			router.GET("/api/items", tt.handler)

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items", nil))

			line := lastLogLine(t, &buf)
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, "HTTP request", line["message"])
			assert.Equal(t, "/api/items", line["path"])
			assert.Equal(t, "GET", line["method"])
			assert.NotEmpty(t, line["request_id"])
			if tt.check != nil {
				tt.check(t, line)
			}
		})
	}
}

func TestRequestLogger_WithoutRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger.InitWithWriter("info", false, &buf)
	t.Cleanup(func() { logger.Init("info", false) })

	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	line := lastLogLine(t, &buf)
	assert.Equal(t, float64(http.StatusOK), line["status_code"])
}
