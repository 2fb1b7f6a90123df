package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guttosm/offline-sync/internal/domain/dto"
	"github.com/guttosm/offline-sync/internal/domain/model"
	"github.com/guttosm/offline-sync/internal/i18n"
	"github.com/guttosm/offline-sync/internal/middleware"
)

const maxProxyBody = 10 << 20

// hopHeaders never travel from the client to the engine.
var hopHeaders = []string{"Connection", "Keep-Alive", "Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade"}

// RequestHandler is the engine entry point the proxy forwards to.
type RequestHandler interface {
	Handle(ctx context.Context, req *model.Request) (*model.Response, error)
}

// ProxyHandler sends application traffic through the offline engine.
type ProxyHandler struct {
	engine RequestHandler
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(engine RequestHandler) *ProxyHandler {
	return &ProxyHandler{engine: engine}
}

// Serve converts the inbound request, hands it to the engine and writes the
// engine's response back. Engine errors are attached to the context for
// middleware.ErrorHandler to render.
func (h *ProxyHandler) Serve(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody+1))
	if err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}
	if len(body) > maxProxyBody {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
			dto.NewError(dto.ErrCodeInvalidRequest, i18n.Message(c, i18n.ErrKeyPayloadTooLarge)).
				WithRequestID(middleware.GetRequestID(c)))
		return
	}

	header := c.Request.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	// The gateway negotiates compression with the client itself.
	header.Del("Accept-Encoding")

	req := &model.Request{
		Method: c.Request.Method,
		URL:    c.Request.URL.RequestURI(),
		Header: header,
		Body:   body,
	}
	if len(body) == 0 {
		req.Body = nil
	}

	resp, err := h.engine.Handle(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	dst := c.Writer.Header()
	for k, vs := range resp.Header {
		if k == "Content-Length" || k == "Content-Encoding" {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	c.Data(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
}
