package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/offline-sync/internal/domain/dto"
	"github.com/guttosm/offline-sync/internal/i18n"
	"github.com/guttosm/offline-sync/internal/logger"
	"github.com/guttosm/offline-sync/internal/remote"
	"github.com/guttosm/offline-sync/internal/repository"
	"github.com/guttosm/offline-sync/internal/service"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Engine errors map to their gateway status; anything unknown is a 500.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		requestID := GetRequestID(c)
		status, code, message := classifyError(err)
		if message == "" {
			message = i18n.Message(c, messageKeys[code])
		}

		log := logger.Logger()
		event := log.Warn()
		if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
			event = log.Error()
		}
		event.
			Str("request_id", requestID).
			Err(err).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Int("status", status).
			Msg("Request error")

		if !c.Writer.Written() {
			c.JSON(status, dto.NewError(code, message).WithRequestID(requestID))
		}
	}
}

var messageKeys = map[string]string{
	dto.ErrCodeOffline:  i18n.ErrKeyOffline,
	dto.ErrCodeStorage:  i18n.ErrKeyStorage,
	dto.ErrCodeInternal: i18n.ErrKeyInternalError,
}

// classifyError maps err to a status and error code. An empty message means
// the generic, translated message for the code is used.
func classifyError(err error) (status int, code, message string) {
	var bindErr *gin.Error
	switch {
	case errors.Is(err, service.ErrCacheMiss), remote.IsNetworkError(err):
		return http.StatusGatewayTimeout, dto.ErrCodeOffline, ""
	case service.IsStorageError(err):
		return http.StatusInternalServerError, dto.ErrCodeStorage, ""
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrUnknownPartition),
		errors.Is(err, service.ErrUnresolvedTempID):
		return http.StatusNotFound, dto.ErrCodeNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrPassInProgress):
		return http.StatusConflict, dto.ErrCodeConflict, err.Error()
	case errors.As(err, &bindErr) && bindErr.IsType(gin.ErrorTypeBind):
		return http.StatusBadRequest, dto.ErrCodeInvalidRequest, err.Error()
	default:
		return http.StatusInternalServerError, dto.ErrCodeInternal, ""
	}
}
