package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// OfflineHeaders are the gateway response headers browsers must be allowed to read.
var OfflineHeaders = []string{
	"X-Offline-Queued",
	"X-Offline-Action-Id",
	"X-Offline-Temp-Id",
	"X-Offline-Fallback",
	RequestIDHeader,
}

// CORS returns the gateway CORS policy for the given origins.
func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"Cache-Control", "X-Requested-With", IdempotencyKeyHeader, RequestIDHeader,
		},
		ExposeHeaders:    OfflineHeaders,
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
